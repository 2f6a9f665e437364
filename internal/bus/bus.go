// Package bus is the control channel between the scribed CLI and the
// daemon: a unix socket with single-letter commands and a pid file.
package bus

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const SockName = "control.sock"
const PidName = "scribed.pid"
const ProtoVer = "0.1"

// Commands understood by the daemon. A command may carry one argument
// after a space, e.g. "y CARDIOLOGY".
const (
	CmdRecord    = 'r' // start recording
	CmdPause     = 'p' // stop recording
	CmdStatus    = 's'
	CmdSpecialty = 'y'
	CmdClear     = 'c'
	CmdUsage     = 'u'
	CmdVersion   = 'v'
	CmdQuit      = 'q'
)

// ~/.cache/scribed/control.sock
func SockPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "scribed", SockName), nil
}

// ~/.cache/scribed/scribed.pid
func PidPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "scribed", PidName), nil
}

func Listen() (net.Listener, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(sp), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(sp) // stale socket from last run
	return net.Listen("unix", sp)
}

func Dial() (net.Conn, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	return net.Dial("unix", sp)
}

// SendCommand sends one command with an optional argument and returns
// the daemon's reply line.
func SendCommand(cmd byte, arg string) (string, error) {
	c, err := Dial()
	if err != nil {
		return "", err
	}
	defer c.Close()

	line := string(cmd)
	if arg != "" {
		line += " " + arg
	}
	if _, err := fmt.Fprintf(c, "%s\n", line); err != nil {
		return "", err
	}

	resp, err := bufio.NewReader(c).ReadString('\n')
	return strings.TrimRight(resp, "\n"), err
}

// ParseCommand splits a request line into command byte and argument.
func ParseCommand(line string) (byte, string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, ""
	}
	cmd := line[0]
	arg := strings.TrimSpace(line[1:])
	return cmd, arg
}

func CheckExistingDaemon() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}

	pidData, err := os.ReadFile(pidPath)
	if os.IsNotExist(err) {
		return nil // no existing daemon
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		return nil // invalid pid file, assume stale
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}

	if err := proc.Signal(os.Signal(nil)); err != nil {
		return nil // process not alive, stale pid file
	}

	return fmt.Errorf("daemon already running with PID %d", pid)
}

func CreatePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(pidPath), 0o700); err != nil {
		return err
	}

	return os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func RemovePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}
	return os.Remove(pidPath)
}
