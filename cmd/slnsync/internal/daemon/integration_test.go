package daemon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/engine"
	"github.com/albertocavalcante/slnsync/pkg/config"
)

func writeProjectFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDaemon_NotifyRegeneratesDescriptor(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "Assets/Core/Core.asmdef", `{"name":"Core"}`)
	writeProjectFile(t, root, "Assets/Core/A.cs", "class A {}")

	cfg := config.NewConfig()
	cfg.Sync.PollInterval = 60
	cfg.Project.SolutionName = "Game"

	h := NewHandler(nil)
	eng, err := engine.New(engine.Options{Root: root, Config: cfg, Notifier: h, DisableWatcher: true})
	if err != nil {
		t.Fatal(err)
	}
	h.SetEngine(eng)

	srv, _ := startServerWith(t, h)

	client := connect(t, srv)
	ctx := testContext(t)

	if _, err := client.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	csproj := filepath.Join(root, "Core.csproj")
	if _, err := os.Stat(csproj); err != nil {
		t.Fatalf("initial sync should write %s: %v", csproj, err)
	}

	added := writeProjectFile(t, root, "Assets/Core/C.cs", "class C {}")
	if _, err := client.Notify(ctx, &NotifyParams{Kind: "created", Path: added}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if _, err := client.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	data, err := os.ReadFile(csproj)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `<Compile Include="Assets/Core/C.cs" />`) {
		t.Errorf("descriptor missing new source:\n%s", data)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case notif, ok := <-client.Events():
			if !ok {
				t.Fatal("connection closed before the written event")
			}
			var params EventParams
			if err := json.Unmarshal(notif.Params, &params); err != nil {
				t.Fatal(err)
			}
			if params.Type == "written" && params.Path == csproj {
				return
			}
		case <-deadline:
			t.Fatal("no written event for the descriptor")
		}
	}
}
