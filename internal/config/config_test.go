package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestInitialize(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if v == nil {
		t.Fatal("viper instance is nil after Initialize()")
	}
}

func TestDefaults(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	tests := []struct {
		key      string
		expected interface{}
		getter   func(string) interface{}
	}{
		{KeyDB, filepath.Join(".tenet", "tenet.db"), func(k string) interface{} { return GetString(k) }},
		{KeyBackend, "sqlite", func(k string) interface{} { return GetString(k) }},
		{KeyDoltPort, 3307, func(k string) interface{} { return GetInt(k) }},
		{KeyOrg, "default", func(k string) interface{} { return GetString(k) }},
		{KeyLead, false, func(k string) interface{} { return GetBool(k) }},
		{KeyConflictThreshold, 0.5, func(k string) interface{} { return GetFloat64(k) }},
		{KeyConflictDetectOnWrite, true, func(k string) interface{} { return GetBool(k) }},
		{KeyClassifierProvider, "rules", func(k string) interface{} { return GetString(k) }},
		{KeySweepHealthInterval, time.Hour, func(k string) interface{} { return GetDuration(k) }},
		{KeySweepConflictInterval, 6 * time.Hour, func(k string) interface{} { return GetDuration(k) }},
		{KeySweepStaleAfter, 720 * time.Hour, func(k string) interface{} { return GetDuration(k) }},
		{KeySweepConcurrency, 4, func(k string) interface{} { return GetInt(k) }},
		{KeyNotifyNATSSubject, "tenet.notifications", func(k string) interface{} { return GetString(k) }},
		{KeyLogLevel, "warn", func(k string) interface{} { return GetString(k) }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := tt.getter(tt.key)
			if got != tt.expected {
				t.Errorf("GetXXX(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestEnvironmentBinding(t *testing.T) {
	tests := []struct {
		envVar   string
		key      string
		value    string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"TENET_ACTOR", KeyActor, "testuser", "testuser", func(k string) interface{} { return GetString(k) }},
		{"TENET_DB", KeyDB, "/tmp/test.db", "/tmp/test.db", func(k string) interface{} { return GetString(k) }},
		{"TENET_LEAD", KeyLead, "true", true, func(k string) interface{} { return GetBool(k) }},
		{"TENET_CONFLICT_THRESHOLD", KeyConflictThreshold, "0.75", 0.75, func(k string) interface{} { return GetFloat64(k) }},
		{"TENET_SWEEP_STALE_AFTER", KeySweepStaleAfter, "48h", 48 * time.Hour, func(k string) interface{} { return GetDuration(k) }},
		{"TENET_DOLT_AUTO_COMMIT", KeyDoltAutoCommit, "true", true, func(k string) interface{} { return GetBool(k) }},
	}

	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)
			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}
			got := tt.getter(tt.key)
			if got != tt.expected {
				t.Errorf("GetXXX(%q) with %s=%s = %v, want %v", tt.key, tt.envVar, tt.value, got, tt.expected)
			}
		})
	}
}

func TestConfigFileDiscovery(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, DirName), 0o750); err != nil {
		t.Fatal(err)
	}
	cfg := "org: acme\nconflict:\n  threshold: 0.8\nnotify:\n  webhooks:\n    - http://hooks.example/a\n"
	if err := os.WriteFile(filepath.Join(root, DirName, FileName), []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	s := Load()
	if s.Org != "acme" {
		t.Errorf("Org = %q, want acme", s.Org)
	}
	if s.Conflict.Threshold != 0.8 {
		t.Errorf("Threshold = %v, want 0.8", s.Conflict.Threshold)
	}
	if len(s.Notify.Webhooks) != 1 {
		t.Errorf("Webhooks = %v, want one entry", s.Notify.Webhooks)
	}
	if !strings.HasSuffix(ConfigFileUsed(), filepath.Join(DirName, FileName)) {
		t.Errorf("ConfigFileUsed() = %q", ConfigFileUsed())
	}
}

func TestNilSafety(t *testing.T) {
	saved := v
	v = nil
	defer func() { v = saved }()

	if got := GetString("org"); got != "" {
		t.Errorf("GetString with nil viper = %q, want \"\"", got)
	}
	if got := GetBool("lead"); got {
		t.Errorf("GetBool with nil viper = %v, want false", got)
	}
	if got := GetDuration("sweep.stale-after"); got != 0 {
		t.Errorf("GetDuration with nil viper = %v, want 0", got)
	}
	if got := GetStringSlice("notify.webhooks"); len(got) != 0 {
		t.Errorf("GetStringSlice with nil viper = %v, want empty slice", got)
	}
	if got := AllSettings(); len(got) != 0 {
		t.Errorf("AllSettings with nil viper = %v, want empty map", got)
	}
	Set("org", "x") // must not panic
}

func TestSetOverridesEnv(t *testing.T) {
	t.Setenv("TENET_ORG", "from-env")
	if err := Initialize(); err != nil {
		t.Fatal(err)
	}
	Set(KeyOrg, "from-flag")
	if got := GetString(KeyOrg); got != "from-flag" {
		t.Errorf("GetString(org) = %q, want from-flag", got)
	}
}

func TestSettingsMarshalRedacts(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatal(err)
	}
	Set(KeyClassifierAPIKey, "sk-secret")
	out, err := Load().Redacted().Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "sk-secret") {
		t.Fatalf("secret leaked into output:\n%s", out)
	}
	var back map[string]interface{}
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("output is not valid yaml: %v", err)
	}
	if back["org"] != "default" {
		t.Errorf("org = %v, want default", back["org"])
	}
}

func TestSetYamlKey(t *testing.T) {
	tests := []struct {
		name    string
		content string
		key     string
		value   string
		want    string
		wantErr bool
	}{
		{
			name:  "empty file",
			key:   "org",
			value: "acme",
			want:  "org: acme\n",
		},
		{
			name:    "nested new key",
			content: "org: acme\n",
			key:     "dolt.port",
			value:   "3310",
			want:    "org: acme\ndolt:\n  port: 3310\n",
		},
		{
			name:    "update in place",
			content: "org: old\nlead: true\n",
			key:     "org",
			value:   "new",
			want:    "org: new\nlead: true\n",
		},
		{
			name:    "scalar in the way",
			content: "dolt: yes\n",
			key:     "dolt.port",
			value:   "1",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := setYamlKey([]byte(tt.content), tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("setYamlKey: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestSetYamlKeyKeepsComments(t *testing.T) {
	got, err := setYamlKey([]byte("# project config\norg: old # inline\n"), "org", "new")
	if err != nil {
		t.Fatalf("setYamlKey: %v", err)
	}
	for _, want := range []string{"# project config", "org: new", "# inline"} {
		if !strings.Contains(string(got), want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestSetYamlConfigCreatesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path, err := SetYamlConfig("classifier.provider", "anthropic")
	if err != nil {
		t.Fatalf("SetYamlConfig: %v", err)
	}
	if err := Initialize(); err != nil {
		t.Fatal(err)
	}
	if got := GetString(KeyClassifierProvider); got != "anthropic" {
		t.Errorf("classifier.provider = %q after SetYamlConfig(%s)", got, path)
	}
}

func TestWatchFileReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.toml")
	if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
		t.Fatal(err)
	}

	var reloads int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- WatchFile(ctx, path, slog.New(slog.NewTextHandler(io.Discard, nil)), func() error {
			atomic.AddInt32(&reloads, 1)
			return nil
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("v2"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&reloads) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(2 * WatchDebounce)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("WatchFile: %v", err)
	}
	if got := atomic.LoadInt32(&reloads); got != 1 {
		t.Errorf("reloads = %d, want 1 (burst should be debounced, other files ignored)", got)
	}
}
