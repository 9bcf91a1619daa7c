// Package cli implements the tasktrail command tree: creating and
// inspecting tracked tasks, querying by status with optional CEL
// filtering, and purging a use case.
package cli
