package model

import "time"

// Session — пара (порт, токен), идентифицирующая авторизованный
// канал к bridge server. В один момент времени активна ровно одна сессия.
type Session struct {
	// Port — порт, на котором отвечает bridge server
	Port int `json:"port"`
	// Token — идентификатор сессии, выданный при handshake
	Token string `json:"token"`
	// CreatedAt — время установления сессии
	CreatedAt time.Time `json:"created_at"`
}
