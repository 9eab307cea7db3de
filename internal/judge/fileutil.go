package judge

import (
	"bufio"
	"os"
)

func readAll(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func firstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	return "", scanner.Err()
}
