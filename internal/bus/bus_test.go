package bus

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		wantCmd byte
		wantArg string
	}{
		{"r\n", 'r', ""},
		{"s", 's', ""},
		{"y CARDIOLOGY\n", 'y', "CARDIOLOGY"},
		{"  q  ", 'q', ""},
		{"", 0, ""},
		{"\n", 0, ""},
	}

	for _, tt := range tests {
		cmd, arg := ParseCommand(tt.line)
		if cmd != tt.wantCmd || arg != tt.wantArg {
			t.Errorf("ParseCommand(%q) = %q, %q; want %q, %q", tt.line, cmd, arg, tt.wantCmd, tt.wantArg)
		}
	}
}

func TestPathFunctions(t *testing.T) {
	t.Run("SockPath", func(t *testing.T) {
		path, err := SockPath()
		if err != nil {
			t.Fatalf("SockPath failed: %v", err)
		}
		if !filepath.IsAbs(path) {
			t.Error("SockPath should return absolute path")
		}
		if filepath.Base(path) != SockName {
			t.Errorf("SockPath should end with %s, got %s", SockName, filepath.Base(path))
		}
	})

	t.Run("PidPath", func(t *testing.T) {
		path, err := PidPath()
		if err != nil {
			t.Fatalf("PidPath failed: %v", err)
		}
		if filepath.Base(path) != PidName {
			t.Errorf("PidPath should end with %s, got %s", PidName, filepath.Base(path))
		}
	})
}

func TestPidFileLifecycle(t *testing.T) {
	pidPath, err := PidPath()
	if err != nil {
		t.Fatalf("PidPath failed: %v", err)
	}
	os.Remove(pidPath)

	if err := CheckExistingDaemon(); err != nil {
		t.Errorf("CheckExistingDaemon should succeed with no pid file: %v", err)
	}

	if err := CreatePidFile(); err != nil {
		t.Fatalf("CreatePidFile failed: %v", err)
	}
	defer RemovePidFile()

	// our own pid is alive, so a second daemon must be refused
	if err := CheckExistingDaemon(); err == nil {
		t.Error("CheckExistingDaemon should fail while the pid file points at a live process")
	}

	if err := RemovePidFile(); err != nil {
		t.Fatalf("RemovePidFile failed: %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("pid file should be gone")
	}
}

func TestCheckExistingDaemonStalePid(t *testing.T) {
	pidPath, err := PidPath()
	if err != nil {
		t.Fatalf("PidPath failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(pidPath), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pidPath, []byte("99999999"), 0o600); err != nil {
		t.Fatal(err)
	}
	defer os.Remove(pidPath)

	if err := CheckExistingDaemon(); err != nil {
		t.Errorf("stale pid file should not block a new daemon: %v", err)
	}
}

func TestListenAndSendCommand(t *testing.T) {
	ln, err := Listen()
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, 64)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		cmd, arg := ParseCommand(string(buf[:n]))
		if cmd == CmdSpecialty && arg == "ONCOLOGY" {
			conn.Write([]byte("OK specialty=ONCOLOGY\n"))
			return
		}
		conn.Write([]byte("ERR unexpected\n"))
	}()

	resp, err := SendCommand(CmdSpecialty, "ONCOLOGY")
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if resp != "OK specialty=ONCOLOGY" {
		t.Errorf("resp = %q", resp)
	}
}
