// Package main hosts the catalogcrawler service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and scrape endpoints. POST /v1/scrape
//     validates the trigger and hands it to the runner, which records the job row before the crawl
//     starts in the background.
//   - Runner: internal/runner enforces the single-flight rule (one crawl at a time, checked in
//     memory and against the job store), owns the job lifecycle transitions, and records the
//     terminal state even when shutdown interrupts the run.
//   - Crawl pipeline: internal/crawler walks both storefront listings page by page, extracts item
//     records with goquery, merges them by (product_name, color) so one physical product carries
//     both locale variants, and stores detail images for newly created products in a single
//     transaction.
//   - Persistence & fanout: products, images, and jobs live in Postgres via pgx, or in memory when
//     no DSN is configured. When a run completes having processed products, a JSON notification is
//     POSTed to the indexing service. Progress events are batched through a hub into log and
//     Prometheus sinks.
//   - Configuration & plumbing: Viper populates config from file and CRAWLER_-prefixed environment
//     variables; zap provides structured logging; Prometheus metrics are exported via the metrics
//     middleware and the /metrics handler.
//
// Operational notes:
//   - Concurrency model: a single crawl goroutine; locale passes are strictly sequential and every
//     outbound request is paced by the request policy (jittered delays, identity rotation, a
//     per-host rate ceiling). Shutdown cancels the run context; terminal job writes run on their
//     own deadline so an interrupted crawl is still marked failed.
//   - Politeness: the pauses between listing pages, item pages, and image downloads are
//     configurable, and the User-Agent rotates every few requests.
//   - Observability: zap logs carry job IDs and URLs at key transitions; Prometheus counters track
//     listing pages, items, images, notifications, and HTTP traffic; the progress hub batches run
//     lifecycle events for downstream sinks.
//
// Quick checklist:
//   - Configure env vars with the CRAWLER_ prefix (CRAWLER_SERVER_PORT, CRAWLER_DATABASE_DSN,
//     CRAWLER_INDEXER_URL, CRAWLER_CRAWLER_MAX_PAGES, ...) or pass --config config.yaml.
//   - Run the service: catalogcrawler serve. One-shot crawl: catalogcrawler crawl [--dry-run]
//     [--max-products N] [--target-url URL].
//   - The process reacts to SIGTERM with a graceful drain: the HTTP server stops accepting work,
//     the active crawl is canceled and its job marked failed, and buffered progress events flush.
package main
