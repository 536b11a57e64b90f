package main

// General API documentation for swaggo. Build with -tags=swagger to serve it.
//
// @title           shrimp API
// @version         1.0
// @description     HTTP service serving on-the-fly resized images.
//
// @BasePath  /
//
// @schemes http
