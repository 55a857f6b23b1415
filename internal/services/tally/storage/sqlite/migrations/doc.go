// Package migrations embeds the SQL schema of the tally SQLite store.
package migrations
