package main

// General API documentation for swaggo. Regenerate with
// `swag init -g cmd/inferd/docs.go -o docs`.
//
// @title           inferd API
// @version         1.0
// @description     HTTP API for supervising local text and image inference servers.
//
// @contact.name   inferd maintainers
// @contact.url    https://github.com/your-org/inferd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
