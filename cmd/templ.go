package cmd

const HELP_TEMPL = `Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}{{end}}
{{.Description}}{{if .VisibleCommands}}
Commands:{{range .VisibleCategories}}{{if .Name}}

{{.Name}}:{{range .VisibleCommands}}
  {{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}{{else}}{{range .VisibleCommands}}
{{"\t"}}{{index .Names 0}}{{"\t:\t"}}{{.Usage}}{{end}}{{end}}{{end}}{{end}}{{if .VisibleFlags}}

Global Flags:{{range .VisibleFlags}}
  {{.}}{{end}}{{end}}

Use "{{.HelpName}} help <command>" for more information about any command.

`

const CMD_HELP_TEMPL = `{{if .Description}}{{.Description}}{{else}}{{.HelpName}} - {{.Usage}}

{{end}}Usage:
        {{.HelpName}} {{if .UsageText}}{{.UsageText}}{{else}}[arguments...]{{end}}{{if .VisibleFlags}}

Supported Flags:{{range .VisibleFlags}}
  {{.}}{{end}}{{end}}

`

const DESCRIPTION = `
warpbundle keeps a local set of asset bundles in sync with a bundle
server, resolves their dependencies and variants, and loads assets
and scenes out of them. It also ships the origin server that
publishes a bundle build directory.
`

const (
	DiffDescription = `The diff command compares a local and a remote version file
and prints the bundles that need downloading, in remote order.

Example:
        warpbundle diff --local cache/assetbundles_version_linux.txt \
                        --remote build/assetbundles_version_linux.txt

`
	SyncDescription = `The sync command connects to the configured bundle server,
downloads every stale bundle and loads the bundle manifest.
With --every it keeps running and syncs again on a cron schedule.

Example:
        warpbundle sync -c warpbundle.toml
        warpbundle sync -c warpbundle.toml --every "*/30 * * * *"

`
	LoadDescription = `The load command synchronizes, then loads a bundle together
with its dependencies and reads one asset from it. The bundles
read from disk or network are printed in the order they started.

Example:
        warpbundle load -c warpbundle.toml characters hero

`
	SceneDescription = `The scene command loads a bundle with its dependencies and
activates a scene from it.

Example:
        warpbundle scene -c warpbundle.toml --additive levels forest

`
	VariantDescription = `The variant command resolves a logical bundle name against
a set of variant bundles and active variant tags.

Example:
        warpbundle variant --variants tex.hd,tex.sd --active sd tex

`
	CacheDescription = `The cache command inspects or clears the content-addressed
bundle cache of a configuration.

Example:
        warpbundle cache stats -c warpbundle.toml
        warpbundle cache clear -c warpbundle.toml

`
	KeyringDescription = `The keyring command stores and removes ftp and sftp passwords
in the operating system keyring. They are used for bundle URLs
that name a user without a password when use_keyring is set.

Example:
        warpbundle keyring set --host cdn.example.com --user deploy
        warpbundle keyring delete --host cdn.example.com --user deploy

`
	ServeDescription = `The serve command publishes a bundle build directory over
HTTP, with a token-protected JSON-RPC catalog and, optionally,
a read-only FTP listener.

Example:
        warpbundle serve --dir build --port 7888 --rpc-secret s3cret

`
)
