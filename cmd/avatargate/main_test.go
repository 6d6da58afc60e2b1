package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/avatargate/avatargate/internal/store"
)

// setupCLIEnv points the CLI at a fresh database and artifact root.
func setupCLIEnv(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	dbPath := filepath.Join(base, "avatargate.db")
	t.Setenv("AVATARGATE_DB_PATH", dbPath)
	t.Setenv("AVATARGATE_UPLOAD_DIR", filepath.Join(base, "uploads"))
	t.Setenv("AVATARGATE_LOG_FORMAT", "json")
	return dbPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func addUser(t *testing.T, username string) {
	t.Helper()
	_, err := runCLI(t, "users", "add",
		"--username", username,
		"--first-name", "Ada",
		"--last-name", "Lovelace",
		"--password", "analytical",
	)
	if err != nil {
		t.Fatalf("users add: %v", err)
	}
}

func TestUsersAddAndList(t *testing.T) {
	setupCLIEnv(t)

	out, err := runCLI(t, "users", "list")
	if err != nil {
		t.Fatalf("users list: %v", err)
	}
	if !strings.Contains(out, "No users") {
		t.Errorf("empty list output = %q", out)
	}

	addUser(t, "ada")

	out, err = runCLI(t, "users", "list")
	if err != nil {
		t.Fatalf("users list: %v", err)
	}
	for _, want := range []string{"Username", "ada", "Ada Lovelace"} {
		if !strings.Contains(out, want) {
			t.Errorf("users list output missing %q:\n%s", want, out)
		}
	}
}

func TestUsersAdd_Errors(t *testing.T) {
	setupCLIEnv(t)
	addUser(t, "ada")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "short password",
			args:    []string{"--username", "bob", "--first-name", "B", "--last-name", "C", "--password", "short"},
			wantErr: "password must be at least 8",
		},
		{
			name:    "duplicate username",
			args:    []string{"--username", "ada", "--first-name", "A", "--last-name", "L", "--password", "analytical"},
			wantErr: "username already taken",
		},
		{
			name:    "missing flag",
			args:    []string{"--username", "bob"},
			wantErr: "required flag",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, append([]string{"users", "add"}, tt.args...)...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestVideosList(t *testing.T) {
	dbPath := setupCLIEnv(t)
	addUser(t, "ada")

	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	u, err := st.GetUserByUsername(context.Background(), "ada")
	if err != nil || u == nil {
		t.Fatalf("GetUserByUsername: %v, %v", u, err)
	}
	v := &store.Video{UserID: u.ID, Filename: "0b1c/output.mp4", Query: "What is the refund policy?"}
	if err := st.CreateVideo(context.Background(), v); err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	st.Close()

	out, err := runCLI(t, "videos", "list", "--username", "ada")
	if err != nil {
		t.Fatalf("videos list: %v", err)
	}
	for _, want := range []string{"/uploads/0b1c/output.mp4", "What is the refund policy?"} {
		if !strings.Contains(out, want) {
			t.Errorf("videos list output missing %q:\n%s", want, out)
		}
	}

	if _, err := runCLI(t, "videos", "list", "--username", "nobody"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("unknown user error = %v", err)
	}
}

func TestEnvFile(t *testing.T) {
	setupCLIEnv(t)
	dbPath := filepath.Join(t.TempDir(), "from-env-file.db")
	envFile := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(envFile, []byte("AVATARGATE_DB_PATH="+dbPath+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// Unset so the file value applies; t.Setenv restores it afterwards.
	t.Setenv("AVATARGATE_DB_PATH", "")
	os.Unsetenv("AVATARGATE_DB_PATH")

	if _, err := runCLI(t, "--env-file", envFile, "users", "list"); err != nil {
		t.Fatalf("users list: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database from env file not created: %v", err)
	}
}

func TestEnvFile_ExplicitMissing(t *testing.T) {
	setupCLIEnv(t)
	_, err := runCLI(t, "--env-file", filepath.Join(t.TempDir(), "missing.env"), "users", "list")
	if err == nil || !strings.Contains(err.Error(), "env file") {
		t.Errorf("error = %v, want env file error", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	setupCLIEnv(t)
	t.Setenv("AVATARGATE_CONCURRENCY", "0")
	if _, err := runCLI(t, "users", "list"); err == nil || !strings.Contains(err.Error(), "CONCURRENCY") {
		t.Errorf("error = %v, want concurrency error", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "info", "auto").Info("hello", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("auto format on a non-terminal should be JSON, got %q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, "info", "text").Info("hello")
	if !strings.Contains(buf.String(), "level=INFO") {
		t.Errorf("text output = %q", buf.String())
	}

	buf.Reset()
	logger := newLogger(&buf, "warn", "json")
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Errorf("level filtering output = %q", buf.String())
	}
}

func TestSweepSessions(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer st.Close()

	past := time.Now().Add(-time.Hour).UTC()
	expired := &store.Session{Token: "old", UserID: 1, CreatedAt: past.Add(-time.Hour), ExpiresAt: past}
	if err := st.CreateSession(context.Background(), expired); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweepSessions(ctx, st, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sess, _ := st.GetSession(context.Background(), "old"); sess == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if sess, _ := st.GetSession(context.Background(), "old"); sess != nil {
		t.Error("expired session not swept")
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"ID", "Name"}, [][]string{{"1", "ada"}, {"2"}}, []columnAlignment{alignRight, alignLeft})
	for _, want := range []string{"ID", "Name", "ada", "2"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("table without headers should render empty")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short  query\n", 48); got != "short query" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate(strings.Repeat("é", 60), 10); len([]rune(got)) != 10 || !strings.HasSuffix(got, "…") {
		t.Errorf("truncate = %q", got)
	}
}
