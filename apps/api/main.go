package main

// start API server: go run ./apps/api
func main() {
	startWithDig()
}
