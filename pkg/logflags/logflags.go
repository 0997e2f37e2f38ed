package logflags

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var any = false
var dwarfLayer = false
var a2lLayer = false
var elfLayer = false
var symbols = false

var logOut io.WriteCloser

func makeLogger(level logrus.Level, fields Fields) Logger {
	if lf := loggerFactory; lf != nil {
		return lf(level, fields, logOut)
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Logger.Out = logOut
	} else {
		logger.Logger.Out = colorable.NewColorableStderr()
	}
	logger.Logger.Level = level
	return &logrusLogger{logger}
}

func makeFlaggableLogger(flag bool, fields Fields) Logger {
	if !flag {
		return makeLogger(logrus.ErrorLevel, fields)
	}
	return makeLogger(logrus.DebugLevel, fields)
}

// Any returns true if any logging is enabled.
func Any() bool {
	return any
}

// DWARF returns true if the debug info rebuilder should log dropped and
// rewritten attributes.
func DWARF() bool {
	return dwarfLayer
}

// DWARFLogger returns a logger for the debug info rebuilder.
func DWARFLogger() Logger {
	return makeFlaggableLogger(dwarfLayer, Fields{"layer": "dwarf"})
}

// A2L returns true if the calibration document stages should log.
func A2L() bool {
	return a2lLayer
}

// A2LLogger returns a logger for the calibration document stages.
func A2LLogger() Logger {
	return makeFlaggableLogger(a2lLayer, Fields{"layer": "a2l"})
}

// ELF returns true if the container stages should log.
func ELF() bool {
	return elfLayer
}

// ELFLogger returns a logger for the container stages.
func ELFLogger() Logger {
	return makeFlaggableLogger(elfLayer, Fields{"layer": "elf"})
}

// Symbols returns true if symbol correlation should log.
func Symbols() bool {
	return symbols
}

// SymbolsLogger returns a logger for symbol correlation.
func SymbolsLogger() Logger {
	return makeFlaggableLogger(symbols, Fields{"layer": "symbols"})
}

// WriteError writes an error message to the log, if logging is enabled.
func WriteError(msg string) {
	if any {
		makeLogger(logrus.ErrorLevel, Fields{}).Error(msg)
	}
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets logging flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "a2lobf-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "dwarf,a2l"
	}
	any = true
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		// If adding another value, do make sure to
		// update "help" in cmds/commands.go.
		switch logcmd {
		case "dwarf":
			dwarfLayer = true
		case "a2l":
			a2lLayer = true
		case "elf":
			elfLayer = true
		case "symbols":
			symbols = true
		default:
			fmt.Fprintf(os.Stderr, "Warning: unknown log output value %q, run 'a2lobf help log' for usage.\n", logcmd)
		}
	}
	return nil
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}

// textFormatter is a simplified version of logrus.TextFormatter that
// doesn't make logs unreadable when they are output to a text file or to a
// terminal that doesn't support colors.
type textFormatter struct {
	colors bool
}

var textFormatterInstance = &textFormatter{colors: isatty.IsTerminal(os.Stderr.Fd())}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	fmt.Fprintf(b, "%s %s ", entry.Time.Format("2006-01-02T15:04:05Z07:00"), f.level(entry.Level))
	if layer, ok := entry.Data["layer"]; ok {
		fmt.Fprintf(b, "%v ", layer)
	}
	b.WriteString(entry.Message)
	for k, v := range entry.Data {
		if k == "layer" {
			continue
		}
		fmt.Fprintf(b, " %s=%v", k, v)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *textFormatter) level(l logrus.Level) string {
	s := strings.ToLower(l.String())
	if !f.colors || logOut != nil {
		return s
	}
	switch l {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return "\x1b[31m" + s + "\x1b[0m"
	case logrus.WarnLevel:
		return "\x1b[33m" + s + "\x1b[0m"
	}
	return s
}
