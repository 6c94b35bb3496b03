// Package async runs independent loads concurrently and collects their
// results with typed futures.
//
//	cfgF := async.Go(ctx, loadConfig)
//	histF := async.Go(ctx, loadHistory)
//	err := async.All(ctx, cfgF, histF)
//	cfg, _ := cfgF.Await(ctx)
package async
