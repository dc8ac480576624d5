// Package tlsutil 统一出入站的 TLS 口径：TLS 1.2 起步、只协商 AEAD
// 密码套件。HTTP 服务端和出站客户端都从这里取配置，不各自手写。
package tlsutil
