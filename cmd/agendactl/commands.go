package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli"

	"agendaprint/internal/controlclient"
	"agendaprint/internal/server"
)

var stdin io.Reader = os.Stdin

func newClient(ctx *cli.Context) *controlclient.Client {
	return controlclient.NewFromConfig(
		controlclient.WithServer(ctx.GlobalString("server")),
		controlclient.WithUser(ctx.GlobalString("user")),
		controlclient.WithPassword(ctx.GlobalString("password")),
	)
}

// apiError adds a hint to authentication failures.
func apiError(err error) error {
	if controlclient.IsUnauthorized(err) {
		return fmt.Errorf("%w (run agendactl login)", err)
	}
	return err
}

func printNow(ctx *cli.Context) error {
	job, err := newClient(ctx).Print(context.Background(), ctx.Bool("wait"))
	if err != nil {
		return apiError(err)
	}
	writeJob(ctx.App.Writer, job)
	return jobError(job)
}

func testPrinter(ctx *cli.Context) error {
	job, err := newClient(ctx).TestPrinter(context.Background(), ctx.Bool("wait"))
	if err != nil {
		return apiError(err)
	}
	writeJob(ctx.App.Writer, job)
	return jobError(job)
}

// jobError turns a finished failed job into the command's exit status.
func jobError(job server.JobView) error {
	if job.Outcome == "" || job.Outcome == "success" {
		return nil
	}
	return errors.New(job.Outcome)
}

func writeJob(w io.Writer, job server.JobView) {
	if job.Outcome == "" {
		fmt.Fprintf(w, "%s %s %s\n", job.ID, job.Reason, job.State)
		return
	}
	fmt.Fprintf(w, "%s %s %s attempts=%d bytes=%d\n", job.ID, job.Reason, job.Outcome, job.Attempts, job.Bytes)
	if job.Message != "" {
		fmt.Fprintf(w, "\t%s\n", job.Message)
	}
}

func status(ctx *cli.Context) error {
	st, err := newClient(ctx).Status(context.Background())
	if err != nil {
		return apiError(err)
	}
	writeStatus(ctx.App.Writer, st)
	return nil
}

func writeStatus(w io.Writer, st server.StatusView) {
	state := "stopped"
	if st.Running {
		state = "running"
	}
	fmt.Fprintf(w, "scheduler: %s\n", state)
	fmt.Fprintf(w, "schedule: %s\n", strings.Join(st.Schedule, ", "))
	if len(st.FiredToday) > 0 {
		fmt.Fprintf(w, "fired today: %s\n", strings.Join(st.FiredToday, ", "))
	}
	if st.NextFire != "" {
		fmt.Fprintf(w, "next: %s\n", st.NextFire)
	}
	conn := "idle"
	if st.Connected {
		conn = "connected"
	}
	fmt.Fprintf(w, "printer: %s (%s)\n", st.Printer, conn)
	fmt.Fprintf(w, "pending: %d\n", st.Pending)
	if st.Current != nil {
		fmt.Fprintf(w, "printing: %s %s\n", st.Current.ID, st.Current.Reason)
	}
}

func jobs(ctx *cli.Context) error {
	list, err := newClient(ctx).Jobs(context.Background(), ctx.Int("limit"))
	if err != nil {
		return apiError(err)
	}
	for _, job := range list {
		writeJob(ctx.App.Writer, job)
	}
	return nil
}

func activityLog(ctx *cli.Context) error {
	list, err := newClient(ctx).Activity(context.Background(), ctx.Int("limit"))
	if err != nil {
		return apiError(err)
	}
	w := ctx.App.Writer
	for _, a := range list {
		line := a.Time.Local().Format("2006-01-02 15:04:05") + " " + a.Kind
		for _, part := range []string{a.Reason, a.JobID, a.Outcome, a.Detail} {
			if part != "" {
				line += " " + part
			}
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func reload(ctx *cli.Context) error {
	if _, err := newClient(ctx).Reload(context.Background()); err != nil {
		return apiError(err)
	}
	fmt.Fprintln(ctx.App.Writer, "configuration reloaded")
	return nil
}

func preview(ctx *cli.Context) error {
	text, err := newClient(ctx).Preview(context.Background())
	if err != nil {
		return apiError(err)
	}
	_, err = io.WriteString(ctx.App.Writer, text)
	return err
}

func spoolList(ctx *cli.Context) error {
	list, err := newClient(ctx).Spool(context.Background())
	if err != nil {
		return apiError(err)
	}
	for _, e := range list {
		fmt.Fprintf(ctx.App.Writer, "%s\t%s\n", e.JobID, e.Text)
	}
	return nil
}

func schedulerStart(ctx *cli.Context) error {
	st, err := newClient(ctx).StartScheduler(context.Background())
	if err != nil {
		return apiError(err)
	}
	writeStatus(ctx.App.Writer, st)
	return nil
}

func schedulerStop(ctx *cli.Context) error {
	st, err := newClient(ctx).StopScheduler(context.Background())
	if err != nil {
		return apiError(err)
	}
	writeStatus(ctx.App.Writer, st)
	return nil
}

func priorityList(ctx *cli.Context) error {
	all, err := newClient(ctx).Priorities(context.Background())
	if err != nil {
		return apiError(err)
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(ctx.App.Writer, "%s\t%s\n", id, all[id])
	}
	return nil
}

func priorityGet(ctx *cli.Context) error {
	id := ctx.Args().First()
	if id == "" {
		return errors.New("usage: agendactl priority get TASK-ID")
	}
	p, err := newClient(ctx).Priority(context.Background(), id)
	if err != nil {
		return apiError(err)
	}
	fmt.Fprintf(ctx.App.Writer, "%s\t%s\n", p.TaskID, p.Priority)
	return nil
}

func prioritySet(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return errors.New("usage: agendactl priority set TASK-ID High|Normal|Low")
	}
	p, err := newClient(ctx).SetPriority(context.Background(), ctx.Args().Get(0), ctx.Args().Get(1))
	if err != nil {
		return apiError(err)
	}
	fmt.Fprintf(ctx.App.Writer, "%s\t%s\n", p.TaskID, p.Priority)
	return nil
}

func taskAdd(ctx *cli.Context) error {
	title := strings.TrimSpace(strings.Join(ctx.Args(), " "))
	if title == "" {
		return errors.New("usage: agendactl task add TITLE")
	}
	task, err := newClient(ctx).AddTask(context.Background(), server.TaskRequest{
		Title:    title,
		List:     ctx.String("list"),
		Priority: ctx.String("priority"),
	})
	if err != nil {
		return apiError(err)
	}
	fmt.Fprintln(ctx.App.Writer, task.ID)
	return nil
}

func taskList(ctx *cli.Context) error {
	tasks, err := newClient(ctx).Tasks(context.Background(), ctx.Bool("all"))
	if err != nil {
		return apiError(err)
	}
	for _, t := range tasks {
		box := "[ ]"
		if t.Completed {
			box = "[x]"
		}
		line := fmt.Sprintf("%s %s %s (%s)", t.ID, box, t.Title, t.Priority)
		if t.List != "" {
			line += " list=" + t.List
		}
		fmt.Fprintln(ctx.App.Writer, line)
	}
	return nil
}

func taskDone(ctx *cli.Context) error {
	id := ctx.Args().First()
	if id == "" {
		return errors.New("usage: agendactl task done TASK-ID")
	}
	return apiError(newClient(ctx).CompleteTask(context.Background(), id))
}

func taskRemove(ctx *cli.Context) error {
	id := ctx.Args().First()
	if id == "" {
		return errors.New("usage: agendactl task rm TASK-ID")
	}
	return apiError(newClient(ctx).DeleteTask(context.Background(), id))
}

// login checks the credentials against the daemon before saving them.
func login(ctx *cli.Context) error {
	client := newClient(ctx)
	password := ctx.GlobalString("password")
	if password == "" {
		var err error
		if password, err = prompt(ctx, "password for "+client.User+": "); err != nil {
			return err
		}
	}
	client.Password = password
	if _, err := client.Status(context.Background()); err != nil {
		return apiError(err)
	}
	if err := controlclient.SavePassword(client.User, password); err != nil {
		return fmt.Errorf("save password: %w", err)
	}
	fmt.Fprintf(ctx.App.Writer, "logged in as %s\n", client.User)
	return nil
}

func logout(ctx *cli.Context) error {
	client := newClient(ctx)
	if err := controlclient.DeletePassword(client.User); err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "password for %s removed\n", client.User)
	return nil
}

// passwd changes a control API password, the caller's unless --user-name is
// given. A password kept in the keyring for that user is updated as well.
func passwd(ctx *cli.Context) error {
	client := newClient(ctx)
	name := ctx.String("user-name")
	if name == "" {
		name = client.User
	}
	password, err := prompt(ctx, "new password for "+name+": ")
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("empty password")
	}
	if err := client.ChangePassword(context.Background(), name, password); err != nil {
		return apiError(err)
	}
	if _, err := controlclient.LoadPassword(name); err == nil {
		if err := controlclient.SavePassword(name, password); err != nil {
			return fmt.Errorf("update keyring: %w", err)
		}
	}
	fmt.Fprintf(ctx.App.Writer, "password changed for %s\n", name)
	return nil
}

func prompt(ctx *cli.Context, label string) (string, error) {
	fmt.Fprint(ctx.App.Writer, label)
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
