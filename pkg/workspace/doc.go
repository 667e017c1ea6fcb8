/*
Package workspace implements the on-disk store of isolated per-mission
directories.

Every workspace lives at <rootPath>/<missionId> with the standard src/,
tests/, docs/ and .aegis/ subdirectories and a .aegis/metadata.json
record. All file operations take mission-relative paths; the joined path
is normalised and rejected with InvalidPath if it does not stay under the
workspace root. A per-file byte ceiling applies to reads and writes.

The store registers workspaces left behind by a previous process on
startup and runs a periodic sweep that evicts workspaces idle past the
TTL along with stale temp files.
*/
package workspace
