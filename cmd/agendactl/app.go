package main

import (
	"io"

	"github.com/urfave/cli"
)

const (
	appName   = "agendactl"
	waitUsage = "wait until the job finished and report its outcome"
)

func Execute(args []string, out io.Writer) error {
	app := cli.NewApp()
	app.Name = appName
	app.HelpName = appName
	app.Usage = "control the agendaprint daemon"
	app.UsageText = "agendactl [global options] <command> [arguments...]"
	app.Version = version
	app.Writer = out
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "server, s", Usage: "control API address (host:port or URL)"},
		cli.StringFlag{Name: "user, u", Usage: "control API user"},
		cli.StringFlag{Name: "password", Usage: "control API password (default: OS keyring)"},
	}
	app.Commands = []cli.Command{
		{
			Name:   "print",
			Usage:  "print the agenda now",
			Action: printNow,
			Flags:  []cli.Flag{cli.BoolFlag{Name: "wait, w", Usage: waitUsage}},
		},
		{
			Name:   "status",
			Usage:  "show scheduler, queue and printer state",
			Action: status,
		},
		{
			Name:   "jobs",
			Usage:  "list finished print jobs, newest first",
			Action: jobs,
			Flags:  []cli.Flag{cli.IntFlag{Name: "limit, n", Value: 20, Usage: "number of jobs"}},
		},
		{
			Name:   "activity",
			Usage:  "list scheduler and job activity, newest first",
			Action: activityLog,
			Flags:  []cli.Flag{cli.IntFlag{Name: "limit, n", Value: 20, Usage: "number of entries"}},
		},
		{
			Name:   "reload",
			Usage:  "re-read the daemon configuration",
			Action: reload,
		},
		{
			Name:   "test",
			Usage:  "print a printer self-test page",
			Action: testPrinter,
			Flags:  []cli.Flag{cli.BoolFlag{Name: "wait, w", Usage: waitUsage}},
		},
		{
			Name:   "preview",
			Usage:  "show the agenda as it would print now",
			Action: preview,
		},
		{
			Name:   "spool",
			Usage:  "list archived receipts",
			Action: spoolList,
		},
		{
			Name:  "scheduler",
			Usage: "start or stop the trigger scheduler",
			Subcommands: []cli.Command{
				{Name: "start", Action: schedulerStart},
				{Name: "stop", Action: schedulerStop},
			},
		},
		{
			Name:  "priority",
			Usage: "read or override task priorities",
			Subcommands: []cli.Command{
				{Name: "list", Usage: "list stored overrides", Action: priorityList},
				{Name: "get", Usage: "get TASK-ID", ArgsUsage: "TASK-ID", Action: priorityGet},
				{Name: "set", Usage: "set TASK-ID High|Normal|Low", ArgsUsage: "TASK-ID LEVEL", Action: prioritySet},
			},
		},
		{
			Name:  "task",
			Usage: "manage the local task list",
			Subcommands: []cli.Command{
				{
					Name:      "add",
					ArgsUsage: "TITLE",
					Action:    taskAdd,
					Flags: []cli.Flag{
						cli.StringFlag{Name: "list, l", Usage: "task list name"},
						cli.StringFlag{Name: "priority, p", Value: "Normal", Usage: "High, Normal or Low"},
					},
				},
				{
					Name:   "list",
					Action: taskList,
					Flags:  []cli.Flag{cli.BoolFlag{Name: "all, a", Usage: "include completed tasks"}},
				},
				{Name: "done", ArgsUsage: "TASK-ID", Action: taskDone},
				{Name: "rm", ArgsUsage: "TASK-ID", Action: taskRemove},
			},
		},
		{
			Name:   "login",
			Usage:  "check credentials and store the password in the OS keyring",
			Action: login,
		},
		{
			Name:   "passwd",
			Usage:  "change a control API password (read from stdin)",
			Action: passwd,
			Flags:  []cli.Flag{cli.StringFlag{Name: "user-name", Usage: "user to change (admins only; default: yourself)"}},
		},
		{
			Name:   "logout",
			Usage:  "remove the stored password",
			Action: logout,
		},
		{
			Name:  "autostart",
			Usage: "start the daemon at login",
			Subcommands: []cli.Command{
				{
					Name:   "enable",
					Action: autostartEnable,
					Flags:  []cli.Flag{cli.StringFlag{Name: "exec", Usage: "daemon executable (default: agendaprint next to agendactl)"}},
				},
				{Name: "disable", Action: autostartDisable},
				{Name: "status", Action: autostartStatus},
			},
		},
	}
	return app.Run(args)
}
