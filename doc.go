// Package geotile is an embedded storage engine and query runtime for
// geospatial feature data organized as a quadtree of tiles.
//
// It stores OpenStreetMap-like features (nodes, ways, relations, with
// tag key/value pairs) in a single-file database, and supports
// concurrent readers with a single writer, crash-safe transactions, and
// indexed spatial queries filtered by bounding box, feature type, and
// tag predicates.
//
// The engine is layered: a transactional paged blob store (page
// allocation, a hot-journal crash-recovery protocol, coalescing
// free-space management) underlies a feature store (tile index, global
// string table, indexed-key schema) which in turn underlies a spatial
// query engine (quadtree descent, per-tile R-tree-like search, a
// worker-pool dispatcher with a streaming deduplicated result stream).
//
// Tile construction, tag-matcher compilation from a query language, and
// output geometry/formatting are external concerns; this package
// receives prebuilt tile byte blobs and opaque compiled matchers.
package geotile
