package testutil

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/bazpack/baz/caps"
)

type ConveyRequirement struct {
	Name      string
	Predicate func() bool
}

/*
	Require that the tests are not running with the "short" flag enabled.
*/
var RequiresLongRun = ConveyRequirement{"run long tests", func() bool { return !testing.Short() }}

/*
	Require that the external repository tool is actually on the PATH.
	Most tests fake the tool; the few end-to-end ones need the real thing.
*/
var RequiresRepoTool = ConveyRequirement{"repository tool on PATH", func() bool {
	tool := os.Getenv("BAZ_BORG")
	if tool == "" {
		tool = "borg"
	}
	_, err := exec.LookPath(tool)
	return err == nil
}}

/*
	Require that the test process can expect FUSE mounts to function.
*/
var RequiresCanMountFuse = ConveyRequirement{"have access to fuse mounts", caps.Scan().CanMountFuse}

/*
	Require that the test process holds enough capabilities for raw unmount syscalls.
*/
var RequiresCanUnmountDirect = ConveyRequirement{"have caps for direct unmount", caps.Scan().CanUnmountDirect}

/*
	Decorates a GoConvey test to check a set of `ConveyRequirement`s,
	returning a dummy test func that skips (with an explanation!) if any
	of the requirements are unsatisfied; if all is well, it yields
	the real test function unchanged.  Provide the `...ConveyRequirement`s
	first, followed by the `func()` (like the argument order in `Convey`).
*/
func Requires(items ...interface{}) func(c convey.C) {
	// parse args
	// not the most robust parsing.  just panics if there's weird stuff
	var requirements []ConveyRequirement
	for _, it := range items {
		if req, ok := it.(ConveyRequirement); ok {
			requirements = append(requirements, req)
		} else {
			break
		}
	}
	action := items[len(items)-1]
	// examine requirements
	var widest int
	for _, req := range requirements {
		if len(req.Name) > widest {
			widest = len(req.Name)
		}
	}
	// check requirements
	var requirementsListing bytes.Buffer
	var names []string
	allSat := true
	for _, req := range requirements {
		sat := req.Predicate()
		allSat = allSat && sat
		names = append(names, req.Name)
		fmt.Fprintf(&requirementsListing, "requirement %*q: %v\n", widest+2, req.Name, sat)
	}
	// act
	if allSat {
		return func(c convey.C) {
			switch action := action.(type) {
			case func():
				action()
			case func(c convey.C):
				action(c)
			}
		}
	} else {
		title := "Prereqs: " + strings.Join(names, ", ")
		return func(c convey.C) {
			convey.Convey(title, nil)
			c.Println()
			c.Print(requirementsListing.String())
		}
	}
}
