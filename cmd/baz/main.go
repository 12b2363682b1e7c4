package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/json"
	"github.com/polydawn/refmt/obj/atlas"
	. "github.com/warpfork/go-errcat"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/bazpack/baz/api"
	"github.com/bazpack/baz/ops"
)

/*
	Output serialization formats
*/
const (
	FmtJson = "json"
	FmtDumb = "dumb"
)

var Atlas = atlas.MustBuild(
	api.SnapshotInfo_AtlasEntry,
	api.Time_AtlasEntry,
)

type baseCLI struct {
	Format    string // Output api format, eg. json
	CreateCLI struct {
		Container  string   // Container file to produce
		SourceDir  string   // Directory to archive
		Encryption string   // Encryption mode for the new repository
		ExtraOpts  []string // Opaque pass-through options for repo init
	}
	UpdateCLI struct {
		Container string // Container file to grow
		SourceDir string // Directory to snapshot
		Tag       string // Explicit tag (optional; ledger counter otherwise)
	}
	ListCLI struct {
		Container string
	}
	ExtractCLI struct {
		Container string
		DestDir   string
		Tag       string
		Force     bool // Skip the overwrite confirmation
	}
	MountCLI struct {
		Container string
		MountDir  string
		Tag       string
	}
	UmountCLI struct {
		MountDir string
	}
}

func configureCreate(cli *baseCLI, cmd *kingpin.CmdClause) {
	cmd.Arg("container", "Container file to create").
		StringVar(&cli.CreateCLI.Container)
	cmd.Arg("sourceDir", "Directory to archive").
		StringVar(&cli.CreateCLI.SourceDir)
	cmd.Flag("encryption", "Encryption mode for the new repository [none, repokey, ...]").
		Short('e').
		Default(string(api.Encryption_None)).
		StringVar(&cli.CreateCLI.Encryption)
	cmd.Arg("extra-options", "Additional options passed through to the repository tool").
		StringsVar(&cli.CreateCLI.ExtraOpts)
}

func configureUpdate(cli *baseCLI, cmd *kingpin.CmdClause) {
	cmd.Arg("container", "Container file to update").
		StringVar(&cli.UpdateCLI.Container)
	cmd.Arg("sourceDir", "Directory to snapshot").
		StringVar(&cli.UpdateCLI.SourceDir)
	cmd.Arg("tag", "Tag for the new snapshot (default: next ledger counter)").
		StringVar(&cli.UpdateCLI.Tag)
}

func configureList(cli *baseCLI, cmd *kingpin.CmdClause) {
	cmd.Arg("container", "Container file to list").
		StringVar(&cli.ListCLI.Container)
}

func configureExtract(cli *baseCLI, cmd *kingpin.CmdClause) {
	cmd.Arg("container", "Container file to extract from").
		StringVar(&cli.ExtractCLI.Container)
	cmd.Arg("destDir", "Directory to extract into").
		StringVar(&cli.ExtractCLI.DestDir)
	cmd.Arg("tag", "Snapshot to extract (default: most recent)").
		StringVar(&cli.ExtractCLI.Tag)
	cmd.Flag("force", "Extract into an existing directory without asking").
		Short('f').
		BoolVar(&cli.ExtractCLI.Force)
}

func configureMount(cli *baseCLI, cmd *kingpin.CmdClause) {
	cmd.Arg("container", "Container file to mount").
		StringVar(&cli.MountCLI.Container)
	cmd.Arg("mountDir", "Directory to mount the read-only view at").
		StringVar(&cli.MountCLI.MountDir)
	cmd.Arg("tag", "Snapshot to mount (default: most recent)").
		StringVar(&cli.MountCLI.Tag)
}

func configureUmount(cli *baseCLI, cmd *kingpin.CmdClause) {
	cmd.Arg("mountDir", "Directory the view was mounted at").
		StringVar(&cli.UmountCLI.MountDir)
}

/*
	Blocks until a sigint is received, then calls cancel.
*/
func CancelOnInterrupt(cancel context.CancelFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	<-signalChan
	cancel()
	close(signalChan)
}

var actions = []string{"create", "update", "list", "extract", "mount", "umount", "unmount", "help"}

func knownAction(word string) bool {
	if strings.HasPrefix(word, "-") {
		return true // flags sort themselves out in parsing
	}
	for _, a := range actions {
		if word == a {
			return true
		}
	}
	return false
}

func main() {
	ctx := context.Background()
	exitCode := Main(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	os.Exit(int(exitCode))
}

func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) api.ExitCode {
	ctx, cancel := context.WithCancel(ctx)
	go CancelOnInterrupt(cancel)

	cli := baseCLI{}

	app := kingpin.New("baz", "Box a versioned backup repository into one portable file.")
	app.HelpFlag.Short('h')

	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	app.Flag("format", "Output api format").
		Default(FmtDumb).
		EnumVar(&cli.Format, FmtJson, FmtDumb)

	appCreate := app.Command("create", "create a container from a source directory")
	configureCreate(&cli, appCreate)
	appUpdate := app.Command("update", "add a snapshot of the source directory to a container")
	configureUpdate(&cli, appUpdate)
	appList := app.Command("list", "list a container's snapshots")
	configureList(&cli, appList)
	appExtract := app.Command("extract", "materialize a snapshot into a directory")
	configureExtract(&cli, appExtract)
	appMount := app.Command("mount", "mount a snapshot as a read-only view")
	configureMount(&cli, appMount)
	appUmount := app.Command("umount", "tear down a mounted view and reclaim its workspace").Alias("unmount")
	configureUmount(&cli, appUmount)

	if len(args) < 2 {
		app.Usage(nil)
		return api.ExitUsage
	}
	if !knownAction(args[1]) {
		fmt.Fprintf(stderr, "baz: %q is not a baz action (try: %s)\n", args[1], strings.Join(actions, ", "))
		return api.ExitUnknownAction
	}

	var termErr error
	app.Terminate(func(status int) {
		termErr = fmt.Errorf("parsing error: %d", status)
	})
	cmd, err := app.Parse(args[1:])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return api.ExitUsage
	}
	if termErr != nil {
		fmt.Fprintln(stderr, termErr)
		return api.ExitUsage
	}

	tc := ops.Default()
	switch cmd {
	case appCreate.FullCommand():
		err = executeCreate(ctx, tc, cli)
	case appUpdate.FullCommand():
		err = executeUpdate(ctx, tc, cli, stdout)
	case appList.FullCommand():
		err = executeList(ctx, tc, cli, stdout)
	case appExtract.FullCommand():
		err = executeExtract(ctx, tc, cli, stdin, stderr)
	case appMount.FullCommand():
		err = executeMount(ctx, tc, cli, stderr)
	case appUmount.FullCommand():
		err = ops.Unmount(ctx, tc, cli.UmountCLI.MountDir)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
	}
	return api.ExitCodeForError(err)
}

func executeCreate(ctx context.Context, tc ops.Toolchain, cli baseCLI) error {
	enc := api.EncryptionMode(cli.CreateCLI.Encryption)
	extraOpts := cli.CreateCLI.ExtraOpts
	// The loose historical surface: a bare "encryption" word before the
	// extra options selects the repository-local key mode.
	if len(extraOpts) > 0 && extraOpts[0] == "encryption" {
		enc = api.Encryption_RepoKey
		extraOpts = extraOpts[1:]
	}
	return ops.Create(ctx, tc, cli.CreateCLI.Container, cli.CreateCLI.SourceDir, enc, extraOpts)
}

func executeUpdate(ctx context.Context, tc ops.Toolchain, cli baseCLI, stdout io.Writer) error {
	tag, err := ops.Update(ctx, tc, cli.UpdateCLI.Container, cli.UpdateCLI.SourceDir, api.Tag(cli.UpdateCLI.Tag))
	if err != nil {
		return err
	}
	switch cli.Format {
	case FmtJson:
		fmt.Fprintf(stdout, "{\"tag\":%q}\n", tag)
	case FmtDumb:
		fmt.Fprintln(stdout, tag)
	}
	return nil
}

func executeList(ctx context.Context, tc ops.Toolchain, cli baseCLI, stdout io.Writer) error {
	marshaller := refmt.NewMarshallerAtlased(json.EncodeOptions{}, stdout, Atlas)
	return ops.List(ctx, tc, cli.ListCLI.Container, func(info api.SnapshotInfo) error {
		switch cli.Format {
		case FmtJson:
			if err := marshaller.Marshal(&info); err != nil {
				return Errorf(api.ErrUsage, "serializing listing: %s", err)
			}
			fmt.Fprintln(stdout)
			return nil
		default:
			_, err := fmt.Fprintf(stdout, "%s\t%s\n", info.Tag, info.Time.Format(time.RFC3339))
			return err
		}
	})
}

func executeExtract(ctx context.Context, tc ops.Toolchain, cli baseCLI, stdin io.Reader, stderr io.Writer) error {
	confirm := promptConfirm(stdin, stderr)
	if cli.ExtractCLI.Force {
		confirm = func(string) bool { return true }
	}
	proceeded, err := ops.Extract(ctx, tc, cli.ExtractCLI.Container, cli.ExtractCLI.DestDir, api.Tag(cli.ExtractCLI.Tag), confirm)
	if err != nil {
		return err
	}
	if !proceeded {
		fmt.Fprintln(stderr, "aborted.")
	}
	return nil
}

func executeMount(ctx context.Context, tc ops.Toolchain, cli baseCLI, stderr io.Writer) error {
	wsPath, err := ops.Mount(ctx, tc, cli.MountCLI.Container, cli.MountCLI.MountDir, api.Tag(cli.MountCLI.Tag))
	if err != nil {
		return err
	}
	fmt.Fprintf(stderr, "mounted; workspace %s will be reclaimed by `baz umount %s`\n", wsPath, cli.MountCLI.MountDir)
	return nil
}

/*
	An interactive yes/no gate for destructive extraction.
	Anything but an explicit yes declines: unattended runs with no input
	wired up fall through to "no", and must use --force instead.
*/
func promptConfirm(stdin io.Reader, stderr io.Writer) func(prompt string) bool {
	return func(prompt string) bool {
		fmt.Fprintf(stderr, "%s -- proceed? [y/N] ", prompt)
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}
