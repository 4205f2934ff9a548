package buildtool

import "fmt"

// GradleTool configures builds and tests through Gradle.
type GradleTool struct{}

func (g *GradleTool) Name() string { return "gradle" }

func (g *GradleTool) ConfigFiles(projectName string) map[string]string {
	return map[string]string{
		"build.gradle": `plugins {
    id 'java'
}

repositories {
    mavenCentral()
}

dependencies {
    testImplementation 'org.junit.jupiter:junit-jupiter:5.10.2'
}

test {
    useJUnitPlatform()
    testLogging {
        events 'passed', 'failed', 'skipped'
        showStandardStreams = false
    }
}
`,
		"settings.gradle": fmt.Sprintf("rootProject.name = '%s'\n", projectName),
	}
}

func (g *GradleTool) SourceRoot() string { return "src/main/java" }

func (g *GradleTool) TestRoot() string { return "src/test/java" }

func (g *GradleTool) TestCommand(workspace string) string {
	return fmt.Sprintf("cd %s && gradle test --console=plain --offline", workspace)
}

func (g *GradleTool) ReportDir() string { return "build/test-results/test" }
