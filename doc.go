// Package main provides the entry point for the parentsync provisioning
// tool. It reconciles parent contact records exported by a school MIS with
// user accounts in a downstream LMS: approved contacts are staged into the
// LMS pending-auth table, the LMS's own sync job materializes the account,
// and a batch provisioning cycle links each new parent account to its
// pupil accounts via role assignments. The application uses gorm for data
// persistence against both the internal store and the LMS database.
package main
