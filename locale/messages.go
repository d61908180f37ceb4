package locale

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys for user-facing session banners.
const (
	MsgSessionExpired    = "session.expired"
	MsgSessionUnverified = "session.unverified"
	MsgConnectivity      = "network.unreachable"
	MsgLoggedOut         = "session.logged_out"
)

var messages = func() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(English))
	set := func(tag language.Tag, key, msg string) {
		_ = b.SetString(tag, key, msg)
	}

	set(English, MsgSessionExpired, "Your session has expired. Please log in again.")
	set(English, MsgSessionUnverified, "We could not confirm your session. Check your connection.")
	set(English, MsgConnectivity, "Unable to reach the server. Please try again.")
	set(English, MsgLoggedOut, "You have been logged out.")

	set(Arabic, MsgSessionExpired, "انتهت صلاحية جلستك. يرجى تسجيل الدخول مرة أخرى.")
	set(Arabic, MsgSessionUnverified, "تعذر التحقق من جلستك. تحقق من اتصالك.")
	set(Arabic, MsgConnectivity, "تعذر الوصول إلى الخادم. يرجى المحاولة مرة أخرى.")
	set(Arabic, MsgLoggedOut, "تم تسجيل خروجك.")
	return b
}()

// Text returns the message for key in the active language.
func (l *Locale) Text(key string) string {
	p := message.NewPrinter(l.Tag(), message.Catalog(messages))
	return p.Sprintf(key)
}
