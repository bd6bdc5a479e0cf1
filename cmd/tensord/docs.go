package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           tensord API
// @version         1.0
// @description     HTTP API for multi-framework tensor inference with dynamic batching.
//
// @contact.name   tensord maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
