// Package homeauto executes assistant actions against the home automation
// bridge, routed by action name prefix.
package homeauto
