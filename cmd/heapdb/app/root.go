package app

import (
	"context"

	"github.com/Blackdeer1524/HeapDB/src/cli"
)

var rootCmd = cli.Init("heapdb", "Heap file storage engine tools")

func MustExecute(ctx context.Context) {
	initLoad()
	initAnalyze()
	initInspect()
	initEstimate()
	initServe()
	rootCmd.MustExecute(ctx)
}
