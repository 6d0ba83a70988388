package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/emersion/go-autostart"
	"github.com/urfave/cli"
)

const daemonName = "agendaprint"

// daemonExecutable locates the daemon binary installed next to agendactl.
func daemonExecutable() (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", err
	}
	self, err = filepath.EvalSymlinks(self)
	if err != nil {
		return "", err
	}
	name := daemonName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(self), name), nil
}

func autostartApp(exec string) *autostart.App {
	return &autostart.App{
		Name:        daemonName,
		DisplayName: "Agenda Print",
		Exec:        []string{exec},
	}
}

func autostartEnable(ctx *cli.Context) error {
	exec := ctx.String("exec")
	if exec == "" {
		var err error
		if exec, err = daemonExecutable(); err != nil {
			return err
		}
	}
	if abs, err := filepath.Abs(exec); err == nil {
		exec = abs
	}
	if _, err := os.Stat(exec); err != nil {
		return fmt.Errorf("daemon executable: %w", err)
	}
	app := autostartApp(exec)
	if app.IsEnabled() {
		if err := app.Disable(); err != nil {
			return err
		}
	}
	if err := app.Enable(); err != nil {
		return fmt.Errorf("enable autostart: %w", err)
	}
	fmt.Fprintf(ctx.App.Writer, "autostart enabled: %s\n", exec)
	return nil
}

func autostartDisable(ctx *cli.Context) error {
	app := autostartApp("")
	if !app.IsEnabled() {
		fmt.Fprintln(ctx.App.Writer, "autostart already disabled")
		return nil
	}
	if err := app.Disable(); err != nil {
		return fmt.Errorf("disable autostart: %w", err)
	}
	fmt.Fprintln(ctx.App.Writer, "autostart disabled")
	return nil
}

func autostartStatus(ctx *cli.Context) error {
	if autostartApp("").IsEnabled() {
		fmt.Fprintln(ctx.App.Writer, "autostart enabled")
	} else {
		fmt.Fprintln(ctx.App.Writer, "autostart disabled")
	}
	return nil
}
