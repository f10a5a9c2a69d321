// Package health reduces the status of several independently-failing
// subsystems to one snapshot, one weighted score in [0,100] and a list of
// derived alerts. Status requests fan out concurrently and every one is
// failure-isolated: a broken subsystem contributes an absent section plus a
// recorded error, never an aborted collection. Scoring and alert derivation
// read the same snapshot but are independent of each other.
package health
