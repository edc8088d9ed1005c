// Command wayfinder runs plan-driven agents against a desktop of apps.
package main

func main() {
	Execute()
}
