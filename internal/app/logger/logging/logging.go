package logging

import (
	"log/slog"
)

func Error(err error) slog.Attr {
	if err == nil {
		slog.Error("Going to log nil error")
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

func Iface(name string) slog.Attr {
	return slog.String("iface", name)
}

func TargetIP(ip string) slog.Attr {
	return slog.String("targetIp", ip)
}

func Peer(addr string) slog.Attr {
	return slog.String("peer", addr)
}
