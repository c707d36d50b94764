// Command kannondemo builds a small diamond-shaped topology - one
// fetch group, two independent transform groups, one report group -
// and runs it with a ThreadingWorker, to exercise the engine
// end-to-end outside of the test suite.
package main

import (
	"fmt"
	"log"
	"runtime"

	"go.lepak.sg/kannon/executor"
	"go.lepak.sg/kannon/group"
	"go.lepak.sg/kannon/must"
	"go.lepak.sg/kannon/topology"
	"go.lepak.sg/kannon/worker"
)

func main() {
	mgr := group.NewManager()

	fetch := must.Must2(mgr.CreateGroup("fetch"))
	transformA := must.Must2(mgr.CreateGroup("transform-a"))
	transformB := must.Must2(mgr.CreateGroup("transform-b"))
	report := must.Must2(mgr.CreateGroup("report"))

	if err := fetch.Precede(transformA.Handle()); err != nil {
		log.Fatalf("precede: %v", err)
	}
	if err := fetch.Precede(transformB.Handle()); err != nil {
		log.Fatalf("precede: %v", err)
	}
	if err := transformA.Precede(report.Handle()); err != nil {
		log.Fatalf("precede: %v", err)
	}
	if err := transformB.Precede(report.Handle()); err != nil {
		log.Fatalf("precede: %v", err)
	}

	must.Must2(fetch.CreateTask("fetch-rows", func() {
		fmt.Println("fetch: loaded rows")
	}))
	must.Must2(transformA.CreateTask("normalize", func() {
		fmt.Println("transform-a: normalized")
	}))
	must.Must2(transformB.CreateTask("enrich", func() {
		fmt.Println("transform-b: enriched")
	}))
	must.Must2(report.CreateTask("summarize", func() {
		fmt.Println("report: summarized")
	}))

	top := must.Must2(topology.Build(mgr.Groups()))

	exec := executor.New()
	if _, err := exec.ExchangeWorker(worker.NewThreading(runtime.GOMAXPROCS(0))); err != nil {
		log.Fatalf("exchange worker: %v", err)
	}
	if _, err := exec.ExchangeTopology(top); err != nil {
		log.Fatalf("exchange topology: %v", err)
	}

	if err := exec.Execute(); err != nil {
		log.Fatalf("execute: %v", err)
	}
	if err := exec.WaitFinish(); err != nil {
		log.Fatalf("wait finish: %v", err)
	}

	fmt.Println("done")
}
