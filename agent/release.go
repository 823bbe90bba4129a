package agent

import (
	"os"
	"regexp"
	"time"
)

// ReleaseContext is the optional release_context record from spec.md §3,
// resolved per spec.md §6's platform-environment-variable fallback chain
// when explicit values are absent.
type ReleaseContext struct {
	CommitHash        string `json:"commit_hash,omitempty"`
	CommitShort       string `json:"commit_short,omitempty"`
	Branch            string `json:"branch,omitempty"`
	RemoteURL         string `json:"remote_url,omitempty"`
	Version           string `json:"version,omitempty"`
	ProjectName       string `json:"project_name,omitempty"`
	ProjectIdentifier string `json:"project_identifier,omitempty"`
	Source            string `json:"source,omitempty"`
	CapturedAt        string `json:"captured_at,omitempty"`
}

// commitEnvVars is the precedence list from spec.md §6: "commit from
// HEROKU_SLUG_COMMIT, VERCEL_GIT_COMMIT_SHA, ..., first non-empty wins".
var commitEnvVars = []string{
	"HEROKU_SLUG_COMMIT",
	"VERCEL_GIT_COMMIT_SHA",
	"CODEBUILD_RESOLVED_SOURCE_VERSION",
	"CIRCLE_SHA1",
	"GITHUB_SHA",
	"CI_COMMIT_SHA",
	"GIT_COMMIT",
	"SOURCE_VERSION",
}

var branchEnvVars = []string{
	"VERCEL_GIT_COMMIT_REF",
	"CIRCLE_BRANCH",
	"GITHUB_REF_NAME",
	"CI_COMMIT_BRANCH",
	"CI_COMMIT_TAG",
}

// repoEnvVars, tried after the VERCEL_GIT_REPO_OWNER/VERCEL_GIT_REPO_SLUG
// pair, implements spec.md §6's repo precedence:
// "VERCEL_GIT_REPO_{OWNER,SLUG}, GITHUB_REPOSITORY, CI_PROJECT_PATH,
// CIRCLE_REPOSITORY_URL".
var repoEnvVars = []string{
	"GITHUB_REPOSITORY",
	"CI_PROJECT_PATH",
	"CIRCLE_REPOSITORY_URL",
}

func firstNonEmptyEnv(names []string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

var shaPattern = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)

// resolveReleaseContext builds the optional release context. Explicit
// values (release|version|commit|branch|repository, resolved across all
// three configuration channels per spec.md §6) take precedence over the
// platform environment variable fallback chain.
func resolveReleaseContext(args, properties map[string]string) *ReleaseContext {
	explicitRelease, hasRelease := resolve(args, properties, configKeys{"release", "aivory.release", "AIVORY_RELEASE"})
	explicitVersion, hasVersion := resolve(args, properties, configKeys{"version", "aivory.version", "AIVORY_VERSION"})
	explicitCommit, hasCommit := resolve(args, properties, configKeys{"commit", "aivory.commit", "AIVORY_COMMIT"})
	explicitBranch, hasBranch := resolve(args, properties, configKeys{"branch", "aivory.branch", "AIVORY_BRANCH"})
	explicitRepo, hasRepo := resolve(args, properties, configKeys{"repository", "aivory.repository", "AIVORY_REPOSITORY"})

	rc := &ReleaseContext{}
	any := hasRelease || hasVersion || hasCommit || hasBranch || hasRepo

	if hasRelease {
		applyReleaseString(rc, explicitRelease)
	}
	if hasVersion {
		rc.Version = explicitVersion
	}
	if hasCommit {
		rc.CommitHash = explicitCommit
	} else if v := firstNonEmptyEnv(commitEnvVars); v != "" {
		rc.CommitHash = v
		any = true
	}
	if rc.CommitHash != "" && len(rc.CommitHash) >= 7 {
		rc.CommitShort = rc.CommitHash[:7]
	}

	if hasBranch {
		rc.Branch = explicitBranch
	} else if v := firstNonEmptyEnv(branchEnvVars); v != "" {
		rc.Branch = v
		any = true
	}

	if hasRepo {
		rc.RemoteURL = explicitRepo
	} else if owner, slug := os.Getenv("VERCEL_GIT_REPO_OWNER"), os.Getenv("VERCEL_GIT_REPO_SLUG"); owner != "" && slug != "" {
		rc.RemoteURL = owner + "/" + slug
		any = true
	} else if v := firstNonEmptyEnv(repoEnvVars); v != "" {
		rc.RemoteURL = v
		any = true
	}

	if !any {
		return nil
	}

	rc.Source = "agent-go"
	rc.CapturedAt = time.Now().UTC().Format(time.RFC3339)
	return rc
}

// applyReleaseString implements spec.md §6's "release alone may encode
// either name@version, a 7-40-hex commit SHA, or a bare version string".
func applyReleaseString(rc *ReleaseContext, release string) {
	if shaPattern.MatchString(release) {
		rc.CommitHash = release
		return
	}
	for i := len(release) - 1; i >= 0; i-- {
		if release[i] == '@' {
			rc.ProjectName = release[:i]
			rc.Version = release[i+1:]
			return
		}
	}
	rc.Version = release
}
