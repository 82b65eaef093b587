// Command libris is the acquisition-request CLI. It files and reviews
// requests, curates the terminal-activity ledger, and synchronizes delivery
// states from the external download queue.
package main
