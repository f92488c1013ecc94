package graph

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"chompbuild.dev/internal/config"
)

func writeFile(t *testing.T, dir, name string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestBuildRejectsDuplicateTargets(t *testing.T) {
	dir := t.TempDir()
	tasks := []config.Task{
		{Name: "a", Target: "out.txt", Run: "echo a"},
		{Name: "b", Target: "out.txt", Run: "echo b"},
	}
	if _, err := Build(tasks, dir); err == nil {
		t.Fatal("expected duplicate target error")
	}
}

func TestBuildRejectsWildcardTarget(t *testing.T) {
	dir := t.TempDir()
	tasks := []config.Task{
		{Name: "a", Target: "dist/*.js", Run: "echo a"},
	}
	if _, err := Build(tasks, dir); err == nil {
		t.Fatal("expected wildcard target error")
	}
}

func TestLookupTargetByTaskName(t *testing.T) {
	dir := t.TempDir()
	tasks := []config.Task{{Name: "build", Run: "echo hi"}}
	g, err := Build(tasks, dir)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := g.LookupTarget("build")
	if err != nil {
		t.Fatal(err)
	}
	if g.Node(idx).Kind != KindJob {
		t.Fatalf("expected job node, got %v", g.Node(idx).Kind)
	}
}

func TestLookupTargetFilePassthrough(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/main.go", time.Now())
	g, err := Build(nil, dir)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := g.LookupTarget("src/main.go")
	if err != nil {
		t.Fatal(err)
	}
	if g.Node(idx).Kind != KindFile {
		t.Fatal("expected file node")
	}
}

func TestInterpolationTieBreakLongestPrefix(t *testing.T) {
	rows := []interpolationRow{
		{targetPattern: "dist/#.js", jobID: 0},
		{targetPattern: "dist/sub/#.js", jobID: 1},
	}
	row, captured, found := bestInterpolationMatch(rows, "dist/sub/foo.js")
	if !found {
		t.Fatal("expected a match")
	}
	if row.jobID != 1 {
		t.Fatalf("expected the longer-prefix row to win, got job %d", row.jobID)
	}
	if captured != "foo" {
		t.Fatalf("expected captured %q, got %q", "foo", captured)
	}
}

func TestSynthesizeInterpolatedJob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/a.ts", time.Now())
	tasks := []config.Task{
		{Name: "compile", Target: "dist/#.js", Dep: "src/#.ts", Run: "tsc"},
	}
	g, err := Build(tasks, dir)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := g.LookupTarget("dist/a.js")
	if err != nil {
		t.Fatal(err)
	}
	job := g.Node(idx).Job
	if len(job.Deps) != 1 {
		t.Fatalf("expected one resolved dep, got %d", len(job.Deps))
	}
	dep := g.Node(job.Deps[0]).File
	if dep.Path != "src/a.ts" {
		t.Fatalf("expected src/a.ts, got %s", dep.Path)
	}
}

func TestExpandTargetSynthesizesOneJobPerMatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/a.c", time.Now())
	writeFile(t, dir, "src/b.c", time.Now())
	tasks := []config.Task{
		{Name: "compile", Target: "build/#.o", Dep: "src/#.c", Run: "cc -c $DEP -o $TARGET"},
	}
	g, err := Build(tasks, dir)
	if err != nil {
		t.Fatal(err)
	}

	jobIdx, err := g.LookupTarget("compile")
	if err != nil {
		t.Fatal(err)
	}
	if !g.Node(jobIdx).Job.Pattern {
		t.Fatal("expected the declared job to be marked as a pattern row")
	}

	if err := g.ExpandTarget(jobIdx); err != nil {
		t.Fatal(err)
	}

	job := g.Node(jobIdx).Job
	if len(job.Deps) != 2 {
		t.Fatalf("expected two synthesized jobs (one per source match), got %d", len(job.Deps))
	}

	targets := map[string]bool{}
	for _, depIdx := range job.Deps {
		child := g.Node(depIdx)
		if child.Kind != KindJob {
			t.Fatalf("expected a synthesized Job node, got %v", child.Kind)
		}
		if child.Job.Pattern {
			t.Fatal("a synthesized child must not itself be marked as the pattern row")
		}
		if len(child.Job.Deps) != 1 {
			t.Fatalf("expected the synthesized job to resolve exactly one dep, got %d", len(child.Job.Deps))
		}
		targetFile := g.Node(child.Job.TargetID).File
		targets[targetFile.Path] = true
	}
	if !targets["build/a.o"] || !targets["build/b.o"] {
		t.Fatalf("expected both build/a.o and build/b.o to be produced, got %v", targets)
	}

	// The pattern row job itself must never be selected as a match's
	// producer; re-resolving a concrete target returns its already-known
	// file node (produced by the synthesized child), not jobIdx.
	concreteIdx, err := g.LookupTarget("build/a.o")
	if err != nil {
		t.Fatal(err)
	}
	if concreteIdx == jobIdx {
		t.Fatal("expected the concrete target to resolve to its own file node, not the pattern row")
	}
}

func TestNeedsRunMtimePolicy(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-time.Hour)
	newer := time.Now()
	writeFile(t, dir, "src/main.go", newer)
	writeFile(t, dir, "bin/app", old)

	tasks := []config.Task{
		{Name: "build", Target: "bin/app", Dep: "src/main.go", Run: "go build"},
	}
	g, err := Build(tasks, dir)
	if err != nil {
		t.Fatal(err)
	}
	jobIdx, err := g.LookupTarget("build")
	if err != nil {
		t.Fatal(err)
	}
	needs, err := g.NeedsRun(jobIdx, false)
	if err != nil {
		t.Fatal(err)
	}
	if !needs {
		t.Fatal("expected stale target to need a run")
	}
}

func TestNeedsRunNotFoundPolicySkipsFreshTarget(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-time.Hour)
	newer := time.Now()
	writeFile(t, dir, "src/main.go", newer)
	writeFile(t, dir, "bin/app", old)

	tasks := []config.Task{
		{Name: "build", Target: "bin/app", Dep: "src/main.go", Run: "go build", Invalidation: config.InvalidationNotFound},
	}
	g, err := Build(tasks, dir)
	if err != nil {
		t.Fatal(err)
	}
	jobIdx, err := g.LookupTarget("build")
	if err != nil {
		t.Fatal(err)
	}
	needs, err := g.NeedsRun(jobIdx, false)
	if err != nil {
		t.Fatal(err)
	}
	if needs {
		t.Fatal("not-found policy must ignore staleness once the target exists")
	}
}

func TestNeedsRunForceOverride(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeFile(t, dir, "src/main.go", now.Add(-time.Hour))
	writeFile(t, dir, "bin/app", now)

	tasks := []config.Task{
		{Name: "build", Target: "bin/app", Dep: "src/main.go", Run: "go build"},
	}
	g, err := Build(tasks, dir)
	if err != nil {
		t.Fatal(err)
	}
	jobIdx, err := g.LookupTarget("build")
	if err != nil {
		t.Fatal(err)
	}
	if needs, _ := g.NeedsRun(jobIdx, false); needs {
		t.Fatal("target is fresh; expected no run without force")
	}
	needs, err := g.NeedsRun(jobIdx, true)
	if err != nil {
		t.Fatal(err)
	}
	if !needs {
		t.Fatal("force must always trigger a run")
	}
}
