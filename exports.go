package bpay

import (
	"github.com/xraph/bpay/execution"
	"github.com/xraph/bpay/types"
)

// Re-export common types for convenience so users don't have to import the
// types and execution packages.

// Amount is re-exported from types package.
type Amount = types.Amount

// Address is re-exported from types package.
type Address = types.Address

// Report is re-exported from execution package.
type Report = execution.Report

// Batch is re-exported from execution package.
type Batch = execution.Batch

// Re-export Amount constructors
var (
	Zero       = types.Zero
	Units      = types.Units
	Native     = types.Native
	ParseUnits = types.ParseUnits
	Sum        = types.Sum
)

// Re-export Address constructor
var NewAddress = types.NewAddress
