// Cloudtally - licensing-relevant cloud resource counting.
// Enumerate. Count. Report.
package main

func main() {
	Execute()
}
