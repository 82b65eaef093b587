// Package users persists the minimal user rows the request and activity
// tables reference.
//
// Authentication and identity live outside this system; these rows exist so
// ownership, review attribution, and cascading deletion have a stable target.
package users
