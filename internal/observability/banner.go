package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

var radarFrames = []string{"◜", "◝", "◞", "◟"}

// termMu synchronizes terminal output so log lines never split a streamed
// reply or the status line.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

type termWriter struct {
	out io.Writer
}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return tw.out.Write(p)
}

// NewTermWriter returns an io.Writer suitable for log.SetOutput(). Writes
// are serialised with WriteTerminal.
func NewTermWriter() io.Writer {
	return termWriter{out: os.Stderr}
}

// WriteTerminal prints s to stdout under the terminal lock.
func WriteTerminal(s string) {
	termMu.Lock()
	defer termMu.Unlock()
	fmt.Print(s)
}

func PrintBanner() {
	banner := `
 _____     _     ____  _ _       _
|_   _|_ _| |__ |  _ \(_) | ___ | |_
  | |/ _` + "`" + ` | '_ \| |_) | | |/ _ \| __|
  | | (_| | |_) |  __/| | | (_) | |_
  |_|\__,_|_.__/|_|   |_|_|\___/ \__|

      >> browser tasks, one step at a time <<
`
	if !IsTerminal() {
		fmt.Println(strings.TrimSpace(banner))
		return
	}

	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Printf("%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
}

// StatusLine renders the current role, task and uptime on one line.
func StatusLine() string {
	role, task, _ := GetStatus()

	roleColor := colorReset
	switch role {
	case RolePlanner, RoleResponder:
		roleColor = colorNeonCyan
	case RoleExecutor, RoleValidator:
		roleColor = colorNeonMag
	}

	radar := " "
	if role != RoleIdle {
		radar = radarFrames[int(time.Since(startTime).Seconds())%len(radarFrames)]
	}

	if task == "" {
		task = "Waiting..."
	}
	if len(task) > 40 {
		task = task[:37] + "..."
	}

	uptime := time.Since(startTime).Round(time.Second)
	if !IsTerminal() {
		return fmt.Sprintf("[%s] %s [%v]", role, task, uptime)
	}
	return fmt.Sprintf("%s[%s]%s %s %s%s%s [%v]",
		roleColor, role, colorReset,
		task,
		colorPurple, radar, colorReset,
		uptime,
	)
}
