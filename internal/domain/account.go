package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies an account for normal balance defaults and statement placement.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// AccountTypes lists every account type in statement order.
var AccountTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeRevenue,
	AccountTypeExpense,
}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// DefaultNormalBalance returns the side that increases accounts of this type.
func (t AccountType) DefaultNormalBalance() NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalDebit
	default:
		return NormalCredit
	}
}

// Temporary reports whether balances of this type are closed into retained earnings.
func (t AccountType) Temporary() bool {
	return t == AccountTypeRevenue || t == AccountTypeExpense
}

// NormalBalance is the side on which an account increases.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "debit"
	NormalCredit NormalBalance = "credit"
)

// Valid reports whether n is debit or credit.
func (n NormalBalance) Valid() bool {
	return n == NormalDebit || n == NormalCredit
}

// Delta returns the signed balance change for a debit/credit pair.
func (n NormalBalance) Delta(debit, credit decimal.Decimal) decimal.Decimal {
	if n == NormalCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// Category groups accounts under a type.
type Category struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	CreatedAt time.Time
}

// Account is a node of the chart of accounts.
type Account struct {
	ID            int64
	Code          string
	Name          string
	Description   string
	CategoryCode  string
	Type          AccountType
	NormalBalance NormalBalance
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AccountBalance is the stored running balance of an account.
type AccountBalance struct {
	AccountID       int64
	Balance         decimal.Decimal
	LastPostingDate time.Time
	Version         int64
}
