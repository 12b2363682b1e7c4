/*
	Helpers for loading contextual config.

	Config for baz means "things that are the host machine operator's
	concerns".  So, things like where scratch workspaces are allocated and
	which repository tool binary to run are considered "config", as opposed
	to parameters for function calls.  Everything that changes the meaning
	of an operation -- container paths, tags, encryption modes -- arrives
	as explicit arguments and is never read from the environment.
*/
package config

import (
	"os"
	"path/filepath"

	"github.com/bazpack/baz/api"
)

/*
	Return the path under which scratch workspaces are allocated.

	The default value is the host's temp dir;
	this can be overridden by the `BAZ_WORKDIR` environment variable.
*/
func GetWorkBasePath() string {
	pth := os.Getenv("BAZ_WORKDIR")
	if pth == "" {
		return os.TempDir()
	}
	pth, err := filepath.Abs(pth)
	if err != nil {
		panic(err)
	}
	return pth
}

/*
	Return the name or path of the repository tool binary.

	The default value is `"borg"` (resolved via PATH);
	this can be overridden by the `BAZ_BORG` environment variable.
*/
func GetRepoToolPath() string {
	pth := os.Getenv("BAZ_BORG")
	if pth == "" {
		return "borg"
	}
	return pth
}

/*
	Assemble the standard repo tool config.

	AllowRelocated is always set: every container decode lands the
	repository at a fresh path, so its recorded location never matches.
*/
func GetRepoConfig() api.RepoConfig {
	return api.RepoConfig{
		ToolPath:       GetRepoToolPath(),
		AllowRelocated: true,
	}
}
