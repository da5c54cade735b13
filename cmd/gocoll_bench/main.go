// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// gocoll_bench runs AllReduce repeatedly over an in-process group of ranks, and prints the
// latency and bandwidth observed.
//
// Example:
//
//	gocoll_bench -ranks=8 -count=1048576 -dtype=float32 -op=sum -iterations=200
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gocoll/backends/sm"
	"github.com/gomlx/gocoll/pkg/core/buffers"
	"github.com/gomlx/gocoll/pkg/core/comm"
	"github.com/gomlx/gocoll/pkg/core/dtypes"
	"github.com/gomlx/gocoll/pkg/core/errhandler"
	"github.com/gomlx/gocoll/pkg/core/ops"
	"github.com/gomlx/gocoll/pkg/core/status"
	"github.com/gomlx/gocoll/pkg/pmpi"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagRanks      = flag.Int("ranks", 4, "Number of ranks in the group, each one running in its own goroutine.")
	flagCount      = flag.Int("count", 1<<16, "Number of items reduced in each call.")
	flagIterations = flag.Int("iterations", 100, "Number of AllReduce calls per rank.")
	flagDType      = flag.String("dtype", "float32", "Element type, e.g.: int32, float64, complex64.")
	flagOp         = flag.String("op", "sum", "Reduction operation, e.g.: sum, max, bxor.")
	flagInPlace    = flag.Bool("in_place", false, "Use MPI_IN_PLACE as the send buffer.")
	flagParamCheck = flag.Bool("param_check", true, "Validate the arguments of every call.")
	flagColl       = flag.String("coll", sm.ComponentName, "Collective component configuration, see backends.Select.")
	flagProgress   = flag.Bool("progress", true, "Display a progress bar.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagRanks <= 0 || *flagCount < 0 || *flagIterations <= 0 {
		klog.Errorf("-ranks and -iterations must be > 0, -count must be >= 0")
		os.Exit(1)
	}
	dtype, found := dtypes.FromName(*flagDType)
	if !found {
		klog.Errorf("Unknown -dtype=%q", *flagDType)
		os.Exit(1)
	}
	op, found := ops.FromName(*flagOp)
	if !found {
		klog.Errorf("Unknown -op=%q", *flagOp)
		os.Exit(1)
	}
	dt := dtypes.Predefined(dtype)
	if ok, msg := op.ValidFor(dt, "gocoll_bench"); !ok {
		klog.Error(msg)
		os.Exit(1)
	}

	processes := must.M1(startGroup(*flagRanks))
	res := run(processes, dt, op)
	for _, p := range processes {
		must.M(p.Finalize())
	}
	report(res)
	if res.failures > 0 {
		os.Exit(1)
	}
}

// startGroup creates an sm group and initializes one pmpi.Process per rank.
func startGroup(ranks int) ([]*pmpi.Process, error) {
	g, err := sm.NewGroup("MPI_COMM_WORLD", ranks)
	if err != nil {
		return nil, err
	}
	processes := make([]*pmpi.Process, ranks)
	for rank := range ranks {
		processes[rank] = pmpi.NewProcess()
		err = processes[rank].Init(pmpi.Options{
			ParamCheck: *flagParamCheck,
			Coll:       *flagColl,
			World:      g.Comm(rank),
			ErrHandler: errhandler.ErrorsReturn,
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "initializing rank %d", rank)
		}
	}
	return processes, nil
}

type results struct {
	ranks, count, iterations int
	dt                       *dtypes.Datatype
	op                       *ops.Op
	module                   string
	elapsed                  time.Duration
	failures, failedCalls    int
	firstFailure             status.Code
}

func run(processes []*pmpi.Process, dt *dtypes.Datatype, op *ops.Op) *results {
	res := &results{
		ranks:      len(processes),
		count:      *flagCount,
		iterations: *flagIterations,
		dt:         dt,
		op:         op,
		module:     processes[0].World().Table().AllReduceModule.Name(),
	}
	numBytes := res.count * dt.Size()

	var bar *progressbar.ProgressBar
	var output *termenv.Output
	if *flagProgress {
		output = termenv.NewOutput(os.Stdout)
		output.HideCursor()
		bar = progressbar.NewOptions(res.iterations,
			progressbar.OptionSetDescription(fmt.Sprintf("AllReduce %s x %s", humanize.Comma(int64(res.count)), dt)),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("calls"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionClearOnFinish(),
		)
	}

	codes := make([]status.Code, res.ranks)
	failedCalls := make([]int, res.ranks)
	world := make([]*comm.Communicator, res.ranks)
	for rank, p := range processes {
		world[rank] = p.World()
	}
	start := time.Now()
	runRanks(res.ranks, func(rank int) {
		p := processes[rank]
		recv := buffers.Of(make([]byte, numBytes))
		send := buffers.InPlace
		if !*flagInPlace {
			send = buffers.Of(make([]byte, numBytes))
		}
		for range res.iterations {
			// A failed call doesn't stop the rank: the others would block waiting for it in the
			// next call.
			code := p.AllReduce(send, recv, res.count, dt, op, world[rank])
			if code != status.Success {
				if codes[rank] == status.Success {
					codes[rank] = code
				}
				failedCalls[rank]++
			}
			if rank == 0 && bar != nil {
				_ = bar.Add(1)
			}
		}
	})
	res.elapsed = time.Since(start)
	if bar != nil {
		_ = bar.Finish()
		output.ShowCursor()
	}
	for rank, code := range codes {
		if code != status.Success {
			if res.failures == 0 {
				res.firstFailure = code
			}
			res.failures++
			res.failedCalls += failedCalls[rank]
			klog.Errorf("rank %d failed %d of %d calls, first with %s", rank, failedCalls[rank], res.iterations, code)
		}
	}
	return res
}

// runRanks runs fn for each rank in its own goroutine and waits for all of them.
func runRanks(ranks int, fn func(rank int)) {
	var wg sync.WaitGroup
	for rank := range ranks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(rank)
		}()
	}
	wg.Wait()
}

func report(res *results) {
	numBytes := uint64(res.count * res.dt.Size())
	perCall := res.elapsed / time.Duration(res.iterations)
	fmt.Println(titleStyle.Render("AllReduce"))
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Row("component", res.module)
	table.Row("ranks", humanize.Comma(int64(res.ranks)))
	table.Row("datatype", res.dt.String())
	table.Row("operation", res.op.String())
	table.Row("count", humanize.Comma(int64(res.count)))
	table.Row("bytes per rank", humanize.Bytes(numBytes))
	table.Row("iterations", humanize.Comma(int64(res.iterations)))
	table.Row("param check", fmt.Sprintf("%v", *flagParamCheck))
	table.Row("elapsed", res.elapsed.Round(time.Millisecond).String())
	table.Row("latency", perCall.String())
	if res.elapsed > 0 && numBytes > 0 {
		bandwidth := float64(numBytes) * float64(res.iterations) / res.elapsed.Seconds()
		table.Row("bandwidth per rank", humanize.Bytes(uint64(bandwidth))+"/s")
	}
	if res.failures > 0 {
		table.Row("failures", fmt.Sprintf("%d ranks, %d calls, first: %s", res.failures, res.failedCalls, res.firstFailure))
	}
	fmt.Println(table.Render())
}
