// Package log provides simple, level-filtered logging for the daemon and
// its workers.
//
// Time/date are omitted by default because most deployments run under a
// supervisor (systemd, a container runtime) that already timestamps
// captured output; SetLogDateTime can turn it back on for direct file
// logging.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

var logDateTime bool

var (
	DebugWriter io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrWriter   io.Writer = os.Stderr
	CritWriter  io.Writer = os.Stderr
)

var (
	DebugPrefix string = "[DEBUG]    "
	InfoPrefix  string = "[INFO]     "
	WarnPrefix  string = "[WARNING]  "
	ErrPrefix   string = "[ERROR]    "
	CritPrefix  string = "[CRITICAL] "
)

var (
	DebugLog *log.Logger = log.New(DebugWriter, DebugPrefix, 0)
	InfoLog  *log.Logger = log.New(InfoWriter, InfoPrefix, 0)
	WarnLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.Lshortfile)
	ErrLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.Llongfile)
	CritLog  *log.Logger = log.New(CritWriter, CritPrefix, log.Llongfile)

	DebugTimeLog *log.Logger = log.New(DebugWriter, DebugPrefix, log.LstdFlags)
	InfoTimeLog  *log.Logger = log.New(InfoWriter, InfoPrefix, log.LstdFlags)
	WarnTimeLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.LstdFlags|log.Lshortfile)
	ErrTimeLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.LstdFlags|log.Llongfile)
	CritTimeLog  *log.Logger = log.New(CritWriter, CritPrefix, log.LstdFlags|log.Llongfile)
)

// SetOutput redirects every level's writer to w. Used to point the daemon's
// log at the configured logpath file instead of stderr.
func SetOutput(w io.Writer) {
	DebugWriter, InfoWriter, WarnWriter, ErrWriter, CritWriter = w, w, w, w, w
	DebugLog.SetOutput(w)
	InfoLog.SetOutput(w)
	WarnLog.SetOutput(w)
	ErrLog.SetOutput(w)
	CritLog.SetOutput(w)
	DebugTimeLog.SetOutput(w)
	InfoTimeLog.SetOutput(w)
	WarnTimeLog.SetOutput(w)
	ErrTimeLog.SetOutput(w)
	CritTimeLog.SetOutput(w)
}

// SetLogLevel accepts the config "loglevel" values from spec §6:
// crit, error, warn, info, debug. Unknown values fall back to "info".
func SetLogLevel(lvl string) {
	switch lvl {
	case "crit":
		ErrWriter = io.Discard
		fallthrough
	case "error":
		WarnWriter = io.Discard
		fallthrough
	case "warn":
		InfoWriter = io.Discard
		fallthrough
	case "info":
		DebugWriter = io.Discard
	case "debug":
		// nothing discarded
	default:
		fmt.Printf("log: invalid loglevel %q, using 'info'\n", lvl)
		SetLogLevel("info")
	}
}

func SetLogDateTime(logdate bool) {
	logDateTime = logdate
}

func printStr(v ...interface{}) string {
	return fmt.Sprint(v...)
}

func Debug(v ...interface{}) {
	if DebugWriter != io.Discard {
		out := printStr(v...)
		if logDateTime {
			DebugTimeLog.Output(2, out)
		} else {
			DebugLog.Output(2, out)
		}
	}
}

func Info(v ...interface{}) {
	if InfoWriter != io.Discard {
		out := printStr(v...)
		if logDateTime {
			InfoTimeLog.Output(2, out)
		} else {
			InfoLog.Output(2, out)
		}
	}
}

func Warn(v ...interface{}) {
	if WarnWriter != io.Discard {
		out := printStr(v...)
		if logDateTime {
			WarnTimeLog.Output(2, out)
		} else {
			WarnLog.Output(2, out)
		}
	}
}

func Error(v ...interface{}) {
	if ErrWriter != io.Discard {
		out := printStr(v...)
		if logDateTime {
			ErrTimeLog.Output(2, out)
		} else {
			ErrLog.Output(2, out)
		}
	}
}

// Fatal writes an error log entry and stops the process. Reserved for
// construction-time failures per spec §7 ("Startup errors ... fatal").
func Fatal(v ...interface{}) {
	Error(v...)
	os.Exit(1)
}

func Crit(v ...interface{}) {
	if CritWriter != io.Discard {
		out := printStr(v...)
		if logDateTime {
			CritTimeLog.Output(2, out)
		} else {
			CritLog.Output(2, out)
		}
	}
}

func printfStr(format string, v ...interface{}) string {
	return fmt.Sprintf(format, v...)
}

func Debugf(format string, v ...interface{}) {
	if DebugWriter != io.Discard {
		out := printfStr(format, v...)
		if logDateTime {
			DebugTimeLog.Output(2, out)
		} else {
			DebugLog.Output(2, out)
		}
	}
}

func Infof(format string, v ...interface{}) {
	if InfoWriter != io.Discard {
		out := printfStr(format, v...)
		if logDateTime {
			InfoTimeLog.Output(2, out)
		} else {
			InfoLog.Output(2, out)
		}
	}
}

func Warnf(format string, v ...interface{}) {
	if WarnWriter != io.Discard {
		out := printfStr(format, v...)
		if logDateTime {
			WarnTimeLog.Output(2, out)
		} else {
			WarnLog.Output(2, out)
		}
	}
}

func Errorf(format string, v ...interface{}) {
	if ErrWriter != io.Discard {
		out := printfStr(format, v...)
		if logDateTime {
			ErrTimeLog.Output(2, out)
		} else {
			ErrLog.Output(2, out)
		}
	}
}

func Fatalf(format string, v ...interface{}) {
	Errorf(format, v...)
	os.Exit(1)
}

func Critf(format string, v ...interface{}) {
	if CritWriter != io.Discard {
		out := printfStr(format, v...)
		if logDateTime {
			CritTimeLog.Output(2, out)
		} else {
			CritLog.Output(2, out)
		}
	}
}

// Finfof writes an info line to an arbitrary writer, timestamped
// independent of the package-wide logDateTime setting.
func Finfof(w io.Writer, format string, v ...interface{}) {
	if w != io.Discard {
		currentTime := time.Now()
		fmt.Fprintf(w, currentTime.Format(time.RFC3339)+" "+InfoPrefix+format+"\n", v...)
	}
}
