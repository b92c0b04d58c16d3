package core

import "strings"

type ownerKind uint8

const (
	ownerNone ownerKind = iota
	ownerAnonymous
	ownerAccount
)

// Owner scopes a transaction to exactly one identity: an anonymous device
// token issued before login, or an authenticated account id. The zero value
// is "no owner" and never valid on a persisted transaction.
type Owner struct {
	kind  ownerKind
	value string
}

// AnonymousOwner returns an owner backed by a device token.
func AnonymousOwner(token string) Owner {
	return Owner{kind: ownerAnonymous, value: strings.TrimSpace(token)}
}

// AccountOwner returns an owner backed by an authenticated account id.
func AccountOwner(id string) Owner {
	return Owner{kind: ownerAccount, value: strings.TrimSpace(id)}
}

func (o Owner) IsAnonymous() bool { return o.kind == ownerAnonymous }
func (o Owner) IsAccount() bool   { return o.kind == ownerAccount }
func (o Owner) IsZero() bool      { return o.kind == ownerNone || o.value == "" }

// Token returns the device token, or "" for an account owner.
func (o Owner) Token() string {
	if o.kind == ownerAnonymous {
		return o.value
	}
	return ""
}

// AccountID returns the account id, or "" for an anonymous owner.
func (o Owner) AccountID() string {
	if o.kind == ownerAccount {
		return o.value
	}
	return ""
}

func (o Owner) Validate() error {
	if o.IsZero() {
		return ErrNoOwner
	}
	return nil
}

// String is a log-safe label; it never exposes which concrete token an
// anonymous owner holds beyond the value itself being the scoping key.
func (o Owner) String() string {
	switch o.kind {
	case ownerAnonymous:
		return "device:" + o.value
	case ownerAccount:
		return "account:" + o.value
	default:
		return "none"
	}
}
