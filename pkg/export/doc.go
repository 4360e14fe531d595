// Package export provides all-or-nothing bulk exports of a Discogs
// collection or wantlist.
//
// Discogs paginates lists with a pagination block carrying the total page
// count. The exporter walks pages 1..N strictly in sequence with
// per_page=100, admitting every page through ratelimit.Limiter, and only
// hands out the items once every page arrived:
//
//	exporter := export.NewExporter(discogsClient, limiter, coord, logger,
//		export.WithHook(func(job *export.Job) {
//			if job.Kind == export.KindCollection {
//				coord.AdoptListing(job.Items, time.Now())
//			}
//		}))
//	job, err := exporter.Run(ctx, export.KindCollection)
//
// The run:
//   - is rejected inside the export cooldown before any page is fetched
//   - runs at most once per kind at a time
//   - stops at the reported page count or the first empty page
//   - fails on the first denied or failed page and discards everything
//
// Action wraps the exporter for callers that want the document persisted:
//
//	action := export.NewAction(exporter, export.FileSink{}, "/var/lib/discogs", logger)
//	res, err := action.Invoke(ctx, export.Request{Kind: export.KindWantlist, Persist: true})
package export
