// Package common holds the error taxonomy shared by the authorization and
// submission layers. Callers match sentinel values with errors.Is and
// validation failures with errors.As.
package common
