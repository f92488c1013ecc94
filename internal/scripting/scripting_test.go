package scripting

import (
	"testing"

	"chompbuild.dev/internal/config"
)

func TestRegisterAndRunTemplate(t *testing.T) {
	h, err := NewHost()
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	err = h.Eval(`
		Chomp.registerTemplate("double", function(task, env) {
			return [task, task];
		});
	`)
	if err != nil {
		t.Fatal(err)
	}

	if !h.HasTemplate("double") {
		t.Fatal("expected template to be registered")
	}

	out, err := h.RunTemplate("double", config.Task{Name: "build"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0].Name != "build" {
		t.Fatalf("unexpected expansion: %+v", out)
	}
}

func TestScriptErrorOnUnregisteredTemplate(t *testing.T) {
	h, err := NewHost()
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	_, err = h.RunTemplate("missing", config.Task{}, nil)
	if err == nil {
		t.Fatal("expected an error for an unregistered template")
	}
}

func TestBatchersPreserveRegistrationOrder(t *testing.T) {
	h, err := NewHost()
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	err = h.Eval(`
		Chomp.registerBatcher("second", function(batch, running) { return {groups: []}; });
		Chomp.registerBatcher("first", function(batch, running) { return {groups: []}; });
	`)
	if err != nil {
		t.Fatal(err)
	}

	names := h.Batchers()
	if len(names) != 2 || names[0] != "second" || names[1] != "first" {
		t.Fatalf("expected batchers in registration order, got %v", names)
	}
}

func TestRunBatcherMergesIntoOneGroup(t *testing.T) {
	h, err := NewHost()
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	err = h.Eval(`
		Chomp.registerBatcher("merge-cc", function(batch, running) {
			var ids = [];
			for (var i = 0; i < batch.length; i++) {
				if (batch[i].run.indexOf("cc -c") === 0) ids.push(batch[i].id);
			}
			if (ids.length < 2) return {groups: []};
			return {groups: [{ids: ids, run: "cc -c merged.c"}]};
		});
	`)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := h.RunBatcher("merge-cc", []BatchRequest{
		{ID: 1, Run: "cc -c a.c", Engine: "shell"},
		{ID: 2, Run: "cc -c b.c", Engine: "shell"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Groups) != 1 || len(resp.Groups[0].IDs) != 2 || resp.Groups[0].Run != "cc -c merged.c" {
		t.Fatalf("unexpected batcher response: %+v", resp)
	}
}

func TestRunBatcherSupportsDeferAndClaim(t *testing.T) {
	h, err := NewHost()
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	err = h.Eval(`
		Chomp.registerBatcher("defer-and-claim", function(batch, running) {
			var groups = [];
			var deferred = [];
			for (var i = 0; i < batch.length; i++) {
				if (batch[i].id === 1) {
					groups.push({ids: [1], claim: 99});
				} else {
					deferred.push(batch[i].id);
				}
			}
			return {groups: groups, deferred: deferred};
		});
	`)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := h.RunBatcher("defer-and-claim", []BatchRequest{
		{ID: 1, Run: "cc -c a.c", Engine: "shell"},
		{ID: 2, Run: "cc -c b.c", Engine: "shell"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Groups) != 1 || resp.Groups[0].Claim != 99 {
		t.Fatalf("expected one claim group on command 99, got %+v", resp.Groups)
	}
	if len(resp.Deferred) != 1 || resp.Deferred[0] != 2 {
		t.Fatalf("expected command 2 to be deferred, got %+v", resp.Deferred)
	}
}
