package webui

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultEnvPath is the conda environment of a sibling web UI checkout.
const DefaultEnvPath = "../text-generation-webui/installer_files/env"

const gitCreation = "git init -b main && git remote add origin https://github.com/oobabooga/text-generation-webui && git fetch && git symbolic-ref refs/remotes/origin/HEAD refs/remotes/origin/main && git reset --hard origin/main && git branch --set-upstream-to=origin/main"

// launcherFiles are re-hashed around git pull; a change means the running
// installer is stale.
var launcherFiles = []string{
	"start_linux.sh", "start_macos.sh", "start_windows.bat", "start_wsl.bat",
	"update_linux.sh", "update_macos.sh", "update_windows.bat", "update_wsl.bat",
	"one_click.py",
}

var (
	// ErrScriptUpdated is returned when git pull changed a launcher script.
	ErrScriptUpdated = errors.New("installer script was updated, run it again")
	ErrCondaMissing  = errors.New("conda is not installed")
	ErrBaseEnv       = errors.New("conda base environment is active")
)

// Installer drives the install and update steps of a web UI checkout.
type Installer struct {
	Dir      string // web UI checkout, the working directory of every command
	EnvPath  string // conda environment, relative to Dir unless absolute
	Platform Platform
	Runner   Runner
	Getenv   func(string) (string, bool)
	Out      io.Writer
	Logger   *slog.Logger
}

func NewInstaller(dir, envPath string, platform Platform, runner Runner, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{
		Dir:      dir,
		EnvPath:  envPath,
		Platform: platform,
		Runner:   runner,
		Getenv:   os.LookupEnv,
		Out:      os.Stdout,
		Logger:   logger,
	}
}

func (i *Installer) path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(i.Dir, rel)
}

func (i *Installer) envDir() string {
	return i.path(i.EnvPath)
}

func (i *Installer) run(ctx context.Context, cmd string, opts RunOptions) (Result, error) {
	return i.Runner.Run(ctx, cmd, opts)
}

// mustRun runs cmd in the environment and fails on a non-zero exit.
func (i *Installer) mustRun(ctx context.Context, cmd string) error {
	res, err := i.run(ctx, cmd, RunOptions{Environment: true})
	if err != nil {
		return err
	}
	return AssertSuccess(res)
}

// sitePackages finds the site-packages directory of the conda environment.
func (i *Installer) sitePackages() (string, bool) {
	env := i.envDir()
	for _, pattern := range []string{"lib/python3*/site-packages", "Lib/site-packages"} {
		matches, err := doublestar.Glob(os.DirFS(env), pattern)
		if err != nil || len(matches) == 0 {
			continue
		}
		return filepath.Join(env, filepath.FromSlash(matches[0])), true
	}
	return "", false
}

// TorchVersion reads the installed torch version, asking the environment's
// python when no site-packages directory can be found.
func (i *Installer) TorchVersion(ctx context.Context) (string, error) {
	if sp, ok := i.sitePackages(); ok {
		data, err := os.ReadFile(filepath.Join(sp, "torch", "version.py"))
		if err != nil {
			return "", fmt.Errorf("read torch version: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if _, v, ok := strings.Cut(line, "__version__ = "); ok {
				return strings.Trim(strings.TrimSpace(v), `'"`), nil
			}
		}
		return "", fmt.Errorf("no __version__ in %s", filepath.Join(sp, "torch", "version.py"))
	}

	res, err := i.run(ctx, `python -c "import torch; print(torch.__version__)"`, RunOptions{Environment: true, CaptureOutput: true})
	if err != nil {
		return "", err
	}
	if err := AssertSuccess(res); err != nil {
		return "", fmt.Errorf("torch is not installed: %w", err)
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

// IsInstalled reports whether torch is present in the environment, or
// failing a site-packages directory, whether the environment exists.
func (i *Installer) IsInstalled() bool {
	if sp, ok := i.sitePackages(); ok {
		return isFile(filepath.Join(sp, "torch", "__init__.py"))
	}
	return isDir(i.envDir())
}

// CheckEnv verifies conda is reachable and a project environment is active.
func (i *Installer) CheckEnv(ctx context.Context) error {
	res, err := i.run(ctx, "conda", RunOptions{Environment: true, CaptureOutput: true})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return ErrCondaMissing
	}
	if env, _ := i.Getenv("CONDA_DEFAULT_ENV"); env == "base" {
		return ErrBaseEnv
	}
	return nil
}

func (i *Installer) ClearCache(ctx context.Context) error {
	for _, cmd := range []string{"conda clean -a -y", "python -m pip cache purge"} {
		if _, err := i.run(ctx, cmd, RunOptions{Environment: true}); err != nil {
			return err
		}
	}
	return nil
}

// FileHash returns the hex sha256 of a file under Dir, or "" when it does not exist.
func (i *Installer) FileHash(rel string) (string, error) {
	data, err := os.ReadFile(i.path(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (i *Installer) hashLaunchers() (map[string]string, error) {
	hashes := make(map[string]string, len(launcherFiles))
	for _, name := range launcherFiles {
		h, err := i.FileHash(name)
		if err != nil {
			return nil, err
		}
		hashes[name] = h
	}
	return hashes, nil
}

// UpdateRequirements pulls the web UI and installs its Python requirements
// for the detected torch build. initial marks a first installation, which
// also installs extension requirements unless INSTALL_EXTENSIONS says otherwise.
func (i *Installer) UpdateRequirements(ctx context.Context, initial bool) error {
	if !isDir(i.path(".git")) {
		if err := i.mustRun(ctx, gitCreation); err != nil {
			return err
		}
	}

	before, err := i.hashLaunchers()
	if err != nil {
		return err
	}
	if err := i.mustRun(ctx, "git pull --autostash"); err != nil {
		return err
	}
	after, err := i.hashLaunchers()
	if err != nil {
		return err
	}
	for _, name := range launcherFiles {
		if before[name] != after[name] {
			PrintBigMessage(i.Out, fmt.Sprintf("File '%s' was updated during 'git pull'. Please run the script again.", name))
			return fmt.Errorf("%s: %w", name, ErrScriptUpdated)
		}
	}

	if err := i.installExtensions(ctx, initial); err != nil {
		return err
	}

	torver, err := i.TorchVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(i.Out, "TORCH: %s\n", torver)
	flavor := ParseTorchFlavor(torver)

	if err := i.installRequirements(ctx, flavor); err != nil {
		return err
	}

	if !flavor.CUDA && !flavor.ROCm {
		// pytorch-cuda is how older environments carried CUDA
		res, err := i.run(ctx, "conda list -f pytorch-cuda | grep pytorch-cuda", RunOptions{Environment: true, CaptureOutput: true})
		if err != nil {
			return err
		}
		if res.ExitCode == 1 {
			return i.ClearCache(ctx)
		}
	}

	if err := i.updateExllama(ctx); err != nil {
		return err
	}
	if i.Platform.IsLinux() {
		if err := i.fixLinuxToolchain(ctx); err != nil {
			return err
		}
	}
	return i.ClearCache(ctx)
}

func (i *Installer) installExtensions(ctx context.Context, initial bool) error {
	install := initial
	if v, ok := i.Getenv("INSTALL_EXTENSIONS"); ok {
		install = truthy(v)
	}
	if !install {
		if initial {
			PrintBigMessage(i.Out, "Will not install extensions due to INSTALL_EXTENSIONS environment variable.")
		}
		return nil
	}

	PrintBigMessage(i.Out, "Installing extensions requirements.")
	entries, err := os.ReadDir(i.path("extensions"))
	if err != nil {
		return fmt.Errorf("list extensions: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		// no wheels available for their requirements
		if e.Name() == "superbooga" || e.Name() == "superboogav2" {
			continue
		}
		req := filepath.Join("extensions", e.Name(), "requirements.txt")
		if !isFile(i.path(req)) {
			continue
		}
		if err := i.mustRun(ctx, "python -m pip install -r "+filepath.ToSlash(req)+" --upgrade"); err != nil {
			return err
		}
	}
	return nil
}

func (i *Installer) installRequirements(ctx context.Context, flavor TorchFlavor) error {
	file := RequirementsFile(flavor, i.Platform)
	PrintBigMessage(i.Out, fmt.Sprintf("Installing webui requirements from file: %s", file))

	data, err := os.ReadFile(i.path(file))
	if err != nil {
		return fmt.Errorf("read requirements: %w", err)
	}
	reqs := RewriteRequirements(strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n"), flavor, i.Platform)

	temp := i.path("temp_requirements.txt")
	if err := os.WriteFile(temp, []byte(strings.Join(reqs, "\n")), 0644); err != nil {
		return fmt.Errorf("write temp requirements: %w", err)
	}
	defer os.Remove(temp)

	// git+ packages do not update in place
	for _, name := range GitPackages(reqs) {
		if _, err := i.run(ctx, "python -m pip uninstall -y "+name, RunOptions{Environment: true}); err != nil {
			return err
		}
		fmt.Fprintf(i.Out, "Uninstalled %s\n", name)
	}

	if isFile(i.path("extensions/openai/requirements.txt")) {
		if _, err := i.run(ctx, "python -m pip install -r extensions/openai/requirements.txt --upgrade", RunOptions{Environment: true}); err != nil {
			return err
		}
	}

	return i.mustRun(ctx, "python -m pip install -r temp_requirements.txt --upgrade")
}

func (i *Installer) updateExllama(ctx context.Context) error {
	repos := i.path("repositories")
	if err := os.MkdirAll(repos, 0755); err != nil {
		return err
	}

	var err error
	if !isDir(filepath.Join(repos, "exllama")) {
		_, err = i.run(ctx, "git clone https://github.com/turboderp/exllama.git", RunOptions{Environment: true, Dir: repos})
	} else {
		_, err = i.run(ctx, "git pull", RunOptions{Environment: true, Dir: filepath.Join(repos, "exllama")})
	}
	return err
}

// fixLinuxToolchain links lib64 for ExLlama's JIT build and installs g++ 11
// when the available compiler is missing or too new.
func (i *Installer) fixLinuxToolchain(ctx context.Context) error {
	if !exists(filepath.Join(i.envDir(), "lib64")) {
		cmd := fmt.Sprintf(`ln -s "%s/lib" "%s/lib64"`, i.EnvPath, i.EnvPath)
		if _, err := i.run(ctx, cmd, RunOptions{Environment: true}); err != nil {
			return err
		}
	}

	res, err := i.run(ctx, "g++ -dumpfullversion -dumpversion", RunOptions{Environment: true, CaptureOutput: true})
	if err != nil {
		return err
	}
	if res.ExitCode == 0 && gxxMajor(res.Stdout) <= 11 {
		return nil
	}
	_, err = i.run(ctx, "conda install -y -k conda-forge::gxx_linux-64=11.2.0", RunOptions{Environment: true})
	return err
}

// gxxMajor parses the major version printed by g++, or a large number when unreadable.
func gxxMajor(out []byte) int {
	major, _, _ := strings.Cut(strings.TrimSpace(string(out)), ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 1 << 30
	}
	return n
}

// Run is the installer entry point. With update it refreshes an existing
// install; otherwise it finishes a fresh one.
func (i *Installer) Run(ctx context.Context, update bool) error {
	if err := i.CheckEnv(ctx); err != nil {
		return err
	}
	if update {
		return i.UpdateRequirements(ctx, false)
	}

	if v, _ := i.Getenv("LAUNCH_AFTER_INSTALL"); falsy(v) {
		PrintBigMessage(i.Out, "Install finished successfully and will now exit due to LAUNCH_AFTER_INSTALL.")
		return nil
	}

	// llama-cpp-python loads paths from CUDA env vars even when they do not exist
	return os.MkdirAll(filepath.Join(i.envDir(), "bin"), 0755)
}

// PrintBigMessage frames a message in a banner of stars. Blank lines are dropped.
func PrintBigMessage(w io.Writer, message string) {
	const stars = "*******************************************************************"
	fmt.Fprintf(w, "\n\n%s\n", stars)
	for _, line := range strings.Split(strings.TrimSpace(message), "\n") {
		if strings.TrimSpace(line) != "" {
			fmt.Fprintln(w, "*", line)
		}
	}
	fmt.Fprintf(w, "%s\n\n\n", stars)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
