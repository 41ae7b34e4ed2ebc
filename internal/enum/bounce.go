package enum

type BounceType string

const (
	BounceHard    BounceType = "hard"
	BounceSoft    BounceType = "soft"
	BounceSpam    BounceType = "spam"
	BounceUnknown BounceType = "unknown"
)

func (t BounceType) String() string {
	return string(t)
}

// Suppresses reports whether a bounce of this type puts the recipient on the suppression list.
func (t BounceType) Suppresses() bool {
	return t == BounceHard || t == BounceSpam
}

type MailboxProtocol string

const (
	ProtocolIMAP  MailboxProtocol = "imap"
	ProtocolIMAPS MailboxProtocol = "imaps"
	ProtocolPOP3  MailboxProtocol = "pop3"
	ProtocolPOP3S MailboxProtocol = "pop3s"
)

func (p MailboxProtocol) String() string {
	return string(p)
}

func (p MailboxProtocol) IsTLS() bool {
	return p == ProtocolIMAPS || p == ProtocolPOP3S
}

func (p MailboxProtocol) IsPOP3() bool {
	return p == ProtocolPOP3 || p == ProtocolPOP3S
}

func (p MailboxProtocol) IsValid() bool {
	switch p {
	case ProtocolIMAP, ProtocolIMAPS, ProtocolPOP3, ProtocolPOP3S:
		return true
	}
	return false
}

func (p MailboxProtocol) DefaultPort() int {
	switch p {
	case ProtocolIMAP:
		return 143
	case ProtocolIMAPS:
		return 993
	case ProtocolPOP3:
		return 110
	case ProtocolPOP3S:
		return 995
	}
	return 0
}
