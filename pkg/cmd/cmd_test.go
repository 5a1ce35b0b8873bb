package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crateclone/crateclone/pkg/rdeps"
	"github.com/crateclone/crateclone/pkg/source"
	"github.com/google/go-cmp/cmp"
)

// runRoot executes the root command with an isolated home and working
// directory and returns its stdout.
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCloneFromPath(t *testing.T) {
	crate := t.TempDir()
	files := map[string]string{
		"Cargo.toml": "[package]\nname = \"demo\"\nversion = \"0.3.0\"\n",
		"src/lib.rs": "pub fn demo() {}\n",
	}
	for rel, content := range files {
		p := filepath.Join(crate, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	dest := filepath.Join(t.TempDir(), "out")

	out, err := runRoot(t, "clone", "--path", crate, "--prefix", dest, "--cache-dir", t.TempDir())
	if err != nil {
		t.Fatalf("clone error: %v", err)
	}
	if want := "Cloned demo 0.3.0 into " + dest + "\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
	if _, err := os.Stat(filepath.Join(dest, "src", "lib.rs")); err != nil {
		t.Errorf("src/lib.rs not cloned: %v", err)
	}
}

func TestCloneFlagConflicts(t *testing.T) {
	tests := map[string][]string{
		"path and git":    {"clone", "x", "--path", ".", "--git", "https://example.com/r"},
		"branch and tag":  {"clone", "x", "--git", "https://example.com/r", "--branch", "a", "--tag", "b"},
		"ref without git": {"clone", "x", "--rev", "abc1234"},
		"too many args":   {"clone", "a", "b"},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := runRoot(t, args...); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestSourceFlagsLocation(t *testing.T) {
	tests := map[string]struct {
		flags sourceFlags
		want  source.Location
	}{
		"default registry": {
			want: source.Registry(""),
		},
		"branch": {
			flags: sourceFlags{git: "https://example.com/r", branch: "dev"},
			want:  source.Git("https://example.com/r", "dev"),
		},
		"tag": {
			flags: sourceFlags{git: "https://example.com/r", tag: "v1.0.0"},
			want:  source.Git("https://example.com/r", "v1.0.0"),
		},
		"rev": {
			flags: sourceFlags{git: "https://example.com/r", rev: "abc1234"},
			want:  source.Git("https://example.com/r", "abc1234"),
		},
		"index": {
			flags: sourceFlags{index: "sparse+https://index.example/"},
			want:  source.RegistryIndex("sparse+https://index.example/"),
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := tc.flags.location()
			if err != nil {
				t.Fatalf("location() error: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("location() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPrintDependents(t *testing.T) {
	deps := []rdeps.Dependent{
		{Name: "serde_json", Version: "1.0.100"},
		{Name: "toml", Version: "0.8.0"},
	}

	tests := map[string]struct {
		format  string
		deps    []rdeps.Dependent
		want    string
		wantErr bool
	}{
		"text": {
			format: "text",
			deps:   deps,
			want:   "serde_json  1.0.100\ntoml        0.8.0\n",
		},
		"yaml": {
			format: "yaml",
			deps:   deps,
			want:   "- name: serde_json\n  version: 1.0.100\n- name: toml\n  version: 0.8.0\n",
		},
		"json empty": {
			format: "json",
			want:   "[]\n",
		},
		"unknown": {
			format:  "xml",
			deps:    deps,
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			err := printDependents(&buf, tc.format, tc.deps)
			if (err != nil) != tc.wantErr {
				t.Fatalf("printDependents() error = %v, wantErr = %v", err, tc.wantErr)
			}
			if err == nil && buf.String() != tc.want {
				t.Errorf("printDependents() = %q, want %q", buf.String(), tc.want)
			}
		})
	}
}

func TestRdepsListUsesIndexAPI(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/index/config.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"dl": server.URL + "/dl", "api": server.URL})
	})
	mux.HandleFunc("/api/v1/crates/serde/reverse_dependencies", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			w.Write([]byte(`{"versions":[{"crate":"toml","num":"0.8.0"}]}`))
			return
		}
		w.Write([]byte(`{"versions":[]}`))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	out, err := runRoot(t, "rdeps", "serde", "--list", "-o", "json",
		"--index", "sparse+"+server.URL+"/index/", "--cache-dir", t.TempDir())
	if err != nil {
		t.Fatalf("rdeps error: %v", err)
	}

	var got []rdeps.Dependent
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	want := []rdeps.Dependent{{Name: "toml", Version: "0.8.0"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dependents mismatch (-want +got):\n%s", diff)
	}
	if strings.Contains(out, "Cloning") {
		t.Error("--list should not clone")
	}
}

func TestInitWritesMirror(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"init", "--mirror", "sparse+https://mirror.example.com/"})
	if err := root.Execute(); err != nil {
		t.Fatalf("init error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".crateclone.toml"))
	if err != nil {
		t.Fatalf("reading config: %v", err)
	}
	for _, want := range []string{"replace-with", "sparse+https://mirror.example.com/"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("config missing %q:\n%s", want, data)
		}
	}

	root = NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"init", "--mirror", "sparse+https://other.example.com/"})
	if err := root.Execute(); err == nil {
		t.Error("second init should fail because the config exists")
	}
}
