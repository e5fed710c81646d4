package server

//go:generate swag init -g internal/server/server.go -o internal/server/docs

// @title coigate API
// @version 0.1
// @description Record ingestion and health endpoints served next to the cross-origin isolation proxy.
// @contact.name coigate maintainers
// @BasePath /
